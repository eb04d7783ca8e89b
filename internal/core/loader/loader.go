// Package loader reads record collections, selectors and overrides from
// disk and writes mutated records back.
//
// Records are JSON parsed with ojg. Selector and override files are YAML
// (JSON is accepted as a YAML subset) walked as yaml.v3 nodes, because
// mapping order is application order and a Go map would lose it.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
	"gopkg.in/yaml.v3"

	"github.com/solatis/recordkeeper/internal/types"
)

// LoadRecords reads a JSON object of record ID to record.
func LoadRecords(path string) (types.Records, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return ParseRecords(data)
}

// ParseRecords parses a JSON object of record ID to record. Every record
// must itself be an object; numbers are normalised to float64.
func ParseRecords(data []byte) (types.Records, error) {
	parsed, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformedRecords, err)
	}
	top, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %T, want object", types.ErrMalformedRecords, parsed)
	}

	records := make(types.Records, len(top))
	for id, raw := range top {
		tree, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: record %q is %T, want object", types.ErrMalformedRecords, id, raw)
		}
		records[id] = types.NormalizeRecord(types.Record(tree))
	}
	return records, nil
}

// WriteRecords writes records as indented JSON with sorted keys. The file
// is replaced atomically.
func WriteRecords(path string, records types.Records) error {
	plain := make(map[string]any, len(records))
	for id, r := range records {
		plain[id] = map[string]any(r)
	}
	out := oj.JSON(plain, &ojg.Options{Indent: 2, Sort: true})

	tmp, err := os.CreateTemp(filepath.Dir(path), ".records-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(out + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// LoadSelectors reads an ordered mapping of selector name to definition.
func LoadSelectors(path string) (types.SelectorSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selectors: %w", err)
	}
	return ParseSelectors(data)
}

// LoadOverrides reads an ordered mapping of display name to override.
func LoadOverrides(path string) (types.OverrideSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}
	return ParseOverrides(data)
}

// ParseSelectors decodes a selector document. Only a document that is not a
// mapping, or that repeats a name, is an error; a malformed entry becomes a
// selector the engine will report as invalid.
func ParseSelectors(data []byte) (types.SelectorSet, error) {
	entries, err := topLevel(data)
	if err != nil {
		return nil, err
	}

	set := make(types.SelectorSet, 0, len(entries))
	for _, e := range entries {
		set = append(set, types.NamedSelector{Name: e.name, Selector: decodeSelector(e.value)})
	}
	return set, nil
}

// ParseOverrides decodes an override document with the same rules as
// ParseSelectors.
func ParseOverrides(data []byte) (types.OverrideSet, error) {
	entries, err := topLevel(data)
	if err != nil {
		return nil, err
	}

	set := make(types.OverrideSet, 0, len(entries))
	for _, e := range entries {
		set = append(set, types.NamedOverride{Name: e.name, Override: decodeOverride(e.value)})
	}
	return set, nil
}

type entry struct {
	name  string
	value *yaml.Node
}

// topLevel returns the name/value pairs of the document mapping in order.
// An empty document yields no entries.
func topLevel(data []byte) ([]entry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformedSelectorSet, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: document must be a mapping of name to definition", types.ErrMalformedSelectorSet, root.Line)
	}

	seen := make(map[string]bool, len(root.Content)/2)
	entries := make([]entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode || key.Value == "" {
			return nil, fmt.Errorf("%w: line %d: entry name must be a non-empty string", types.ErrMalformedSelectorSet, key.Line)
		}
		if seen[key.Value] {
			return nil, fmt.Errorf("%w: %w: %q (line %d)", types.ErrMalformedSelectorSet, types.ErrDuplicateName, key.Value, key.Line)
		}
		seen[key.Value] = true
		entries = append(entries, entry{name: key.Value, value: value})
	}
	return entries, nil
}

func decodeSelector(node *yaml.Node) *types.Selector {
	sel := &types.Selector{}
	if node.Kind != yaml.MappingNode {
		// keeps the raw value so validation reports it
		sel.Set = decodeAny(node)
		return sel
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "query":
			sel.Query = decodeExpression(value)
		case "multiply":
			sel.Multiply = decodeMutations(value)
		case "set":
			sel.Set = decodeMutations(value)
		case "priority":
			var p float64
			if err := value.Decode(&p); err == nil {
				sel.Priority = &p
			}
		}
	}
	return sel
}

func decodeOverride(node *yaml.Node) *types.Override {
	ov := &types.Override{}
	if node.Kind != yaml.MappingNode {
		ov.Set = decodeAny(node)
		return ov
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "multiply":
			ov.Multiply = decodeMutations(value)
		case "set":
			ov.Set = decodeMutations(value)
		}
	}
	return ov
}

// decodeExpression returns nil when the node does not decode as an
// expression; the selector is then invalid.
func decodeExpression(node *yaml.Node) *types.Expression {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	var expr types.Expression
	if err := node.Decode(&expr); err != nil {
		return nil
	}
	normalizeExpression(&expr)
	return &expr
}

func normalizeExpression(expr *types.Expression) {
	for i, v := range expr.Values {
		expr.Values[i] = types.Normalize(v)
	}
	for i := range expr.Expressions {
		normalizeExpression(&expr.Expressions[i])
	}
}

// decodeMutations keeps mapping order. A null node is absent; any other
// non-mapping node is returned raw for validation to reject.
func decodeMutations(node *yaml.Node) any {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return decodeAny(node)
	}

	mutations := make(types.Mutations, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		mutations = append(mutations, types.Mutation{
			Path:  node.Content[i].Value,
			Value: decodeAny(node.Content[i+1]),
		})
	}
	return mutations
}

func decodeAny(node *yaml.Node) any {
	var v any
	if err := node.Decode(&v); err != nil {
		return nil
	}
	return types.Normalize(v)
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
