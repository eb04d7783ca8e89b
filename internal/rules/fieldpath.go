// internal/rules/fieldpath.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/recordkeeper/internal/types"
)

/*
 * Property path resolution for record trees.
 *
 * A path is a separator-delimited list of keys. Paths that start with the
 * root marker resolve against the record root; every other path resolves
 * against the properties subtree (record[PropertiesKey]).
 *
 * Key functions:
 *   - Resolver.Read: returns the value, or Found=false for the absent marker
 *   - Resolver.Write: replaces the leaf value
 *   - readRecursive: head/rest traversal shared by both
 *
 * Missing keys are not errors: Read reports them as absent. Traversing
 * into a scalar is a hard PathError, because it means the record shape
 * does not match the path, not that the value is simply missing.
 *
 * Numeric segments index into arrays. An out-of-range index reads as
 * absent and fails on write.
 */

// Default namespace settings.
const (
	DefaultSeparator     = "."
	DefaultRootMarker    = "_"
	DefaultPropertiesKey = "_props"
)

// PathError reports a traversal fault at a specific segment.
type PathError struct {
	Path    string
	Segment string
	Err     error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q at segment %q: %v", e.Path, e.Segment, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// ResolveResult contains the resolved value.
type ResolveResult struct {
	Value any  // resolved value (nil if not found)
	Found bool // false is the absent marker
}

// Resolver reads and writes values at property paths.
type Resolver struct {
	Separator     string
	RootMarker    string
	PropertiesKey string
	MaxDepth      int
}

// DefaultResolver returns a resolver with the default namespace settings.
func DefaultResolver() Resolver {
	return Resolver{
		Separator:     DefaultSeparator,
		RootMarker:    DefaultRootMarker,
		PropertiesKey: DefaultPropertiesKey,
		MaxDepth:      types.MaxPathDepth,
	}
}

// IsRootPath reports whether path addresses the record root.
func (r Resolver) IsRootPath(path string) bool {
	return r.RootMarker != "" && strings.HasPrefix(path, r.RootMarker)
}

// Split breaks a path into segments after enforcing depth limits.
func (r Resolver) Split(path string) ([]string, error) {
	if path == "" {
		return nil, types.ErrEmptyPath
	}
	sep := r.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	segments := strings.Split(path, sep)
	for _, seg := range segments {
		if seg == "" {
			return nil, &PathError{Path: path, Segment: seg, Err: types.ErrEmptyPath}
		}
	}
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = types.MaxPathDepth
	}
	if len(segments) > maxDepth {
		return nil, types.ErrPathTooDeep
	}
	return segments, nil
}

// namespace returns the tree the path is resolved against.
// found=false means the properties subtree does not exist.
func (r Resolver) namespace(record types.Record, path string) (any, bool, error) {
	if r.IsRootPath(path) {
		return map[string]any(record), true, nil
	}
	props, ok := record[r.PropertiesKey]
	if !ok {
		return nil, false, nil
	}
	if _, isTree := asTree(props); !isTree {
		return nil, false, &PathError{Path: path, Segment: r.PropertiesKey, Err: types.ErrNotTraversable}
	}
	return props, true, nil
}

// Read resolves path against record.
// Returns Found=false when any segment is missing.
// Returns *PathError when traversal meets a non-tree value.
func (r Resolver) Read(record types.Record, path string) (ResolveResult, error) {
	segments, err := r.Split(path)
	if err != nil {
		return ResolveResult{}, err
	}
	if record == nil {
		return ResolveResult{}, nil
	}
	tree, found, err := r.namespace(record, path)
	if err != nil || !found {
		return ResolveResult{}, err
	}
	return readRecursive(path, segments, tree)
}

// readRecursive walks segments head first.
func readRecursive(path string, segments []string, current any) (ResolveResult, error) {
	if len(segments) == 0 {
		return ResolveResult{Value: current, Found: true}, nil
	}

	head, rest := segments[0], segments[1:]

	switch v := current.(type) {
	case map[string]any:
		child, ok := v[head]
		if !ok {
			return ResolveResult{}, nil
		}
		return readRecursive(path, rest, child)
	case types.Record:
		return readRecursive(path, segments, map[string]any(v))
	case []any:
		idx, err := strconv.Atoi(head)
		if err != nil {
			return ResolveResult{}, &PathError{Path: path, Segment: head, Err: types.ErrNotTraversable}
		}
		if idx < 0 || idx >= len(v) {
			return ResolveResult{}, nil
		}
		return readRecursive(path, rest, v[idx])
	default:
		// Scalar or null value but path continues
		return ResolveResult{}, &PathError{Path: path, Segment: head, Err: types.ErrNotTraversable}
	}
}

// Write replaces the value at path.
// Every intermediate segment must resolve to a map or an in-range array
// element; otherwise nothing is written and a *PathError is returned.
// Composite values are deep-copied so records never share subtrees.
func (r Resolver) Write(record types.Record, path string, value any) error {
	segments, err := r.Split(path)
	if err != nil {
		return err
	}
	if record == nil {
		return &PathError{Path: path, Segment: segments[0], Err: types.ErrNotTraversable}
	}
	tree, found, err := r.namespace(record, path)
	if err != nil {
		return err
	}
	if !found {
		return &PathError{Path: path, Segment: r.PropertiesKey, Err: types.ErrNotTraversable}
	}

	parent := tree
	for _, seg := range segments[:len(segments)-1] {
		next, err := child(path, seg, parent)
		if err != nil {
			return err
		}
		parent = next
	}

	leaf := segments[len(segments)-1]
	switch p := parent.(type) {
	case map[string]any:
		p[leaf] = DeepCopy(value)
		return nil
	case types.Record:
		p[leaf] = DeepCopy(value)
		return nil
	case []any:
		idx, err := strconv.Atoi(leaf)
		if err != nil || idx < 0 || idx >= len(p) {
			return &PathError{Path: path, Segment: leaf, Err: types.ErrNotTraversable}
		}
		p[idx] = DeepCopy(value)
		return nil
	default:
		return &PathError{Path: path, Segment: leaf, Err: types.ErrNotTraversable}
	}
}

// child steps one segment for Write, where a missing intermediate is a fault.
func child(path, seg string, current any) (any, error) {
	switch v := current.(type) {
	case map[string]any:
		next, ok := v[seg]
		if !ok {
			return nil, &PathError{Path: path, Segment: seg, Err: types.ErrFieldNotFound}
		}
		if !isContainer(next) {
			return nil, &PathError{Path: path, Segment: seg, Err: types.ErrNotTraversable}
		}
		return next, nil
	case types.Record:
		return child(path, seg, map[string]any(v))
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, &PathError{Path: path, Segment: seg, Err: types.ErrNotTraversable}
		}
		if !isContainer(v[idx]) {
			return nil, &PathError{Path: path, Segment: seg, Err: types.ErrNotTraversable}
		}
		return v[idx], nil
	default:
		return nil, &PathError{Path: path, Segment: seg, Err: types.ErrNotTraversable}
	}
}

// asTree returns v as a map when it is a property tree.
func asTree(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case types.Record:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

func isContainer(v any) bool {
	if _, ok := asTree(v); ok {
		return true
	}
	_, ok := v.([]any)
	return ok
}

// DeepCopy returns an independent copy of composite values.
// Scalars are returned unchanged.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = DeepCopy(elem)
		}
		return out
	case types.Record:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = DeepCopy(elem)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = DeepCopy(elem)
		}
		return out
	default:
		return v
	}
}
