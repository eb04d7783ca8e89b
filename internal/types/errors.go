package types

import "errors"

// Sentinel errors for RecordKeeper operations.
var (
	// ErrEmptyPath indicates a property path with no segments.
	ErrEmptyPath = errors.New("property path is empty")

	// ErrPathTooDeep indicates a property path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("property path exceeds maximum depth")

	// ErrNotTraversable indicates traversal reached a value that is not a tree.
	ErrNotTraversable = errors.New("path segment does not resolve to a traversable tree")

	// ErrFieldNotFound indicates a property path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrMalformedExpression indicates an expression is neither a valid basic
	// nor a valid logical expression.
	ErrMalformedExpression = errors.New("malformed expression")

	// ErrUnknownOperation indicates an operation name outside the supported set.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrMalformedMutations indicates multiply/set is not a path to value mapping.
	ErrMalformedMutations = errors.New("mutations must be a mapping of path to value")

	// ErrMalformedSelectorSet indicates the selector or override collection
	// itself is malformed. This is the only error that aborts a pass.
	ErrMalformedSelectorSet = errors.New("malformed selector set")

	// ErrMalformedRecords indicates a record collection that is not an object
	// of objects.
	ErrMalformedRecords = errors.New("malformed record collection")

	// ErrDuplicateName indicates two selectors or overrides share a name.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrNilRecords indicates the record collection is missing.
	ErrNilRecords = errors.New("record collection is nil")

	// ErrUnresolvedName indicates an override display name matched no record.
	ErrUnresolvedName = errors.New("override name does not match any record")

	// ErrRunNotFound indicates a run ID absent from the history store.
	ErrRunNotFound = errors.New("run not found")
)
