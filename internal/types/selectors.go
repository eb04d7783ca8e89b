// internal/types/selectors.go
package types

import "sort"

/*
 * Domain types for record transformation.
 *
 * Provides Expression, Mutation, Selector and Override structures used by
 * internal/rules, internal/mutate and internal/engine. These types are
 * format agnostic - YAML/JSON decoding happens in internal/core/loader.
 *
 * Key types:
 *   - Expression: predicate tree, basic or logical depending on populated fields
 *   - Mutations: ordered path -> value mapping (multiply or set)
 *   - Selector: predicate plus mutations applied to every matching record
 *   - Override: mutations for one record, keyed by display name
 *
 * Multiply/Set are held as `any` so a malformed definition (a list, a
 * scalar) survives loading and is diagnosed by selector validation
 * instead of aborting the whole set.
 */

// Operation names accepted by basic expressions.
const (
	OperationEquals     = "equals"
	OperationGreater    = "greater_than"
	OperationLess       = "less_than"
	OperationStartsWith = "starts_with"
	OperationContains   = "contains"
	OperationEndsWith   = "ends_with"
)

// Condition names accepted by logical expressions.
const (
	ConditionAnd = "and"
	ConditionOr  = "or"
)

// Expression is a predicate over one record.
// Basic form: Key, Operation, Values, Negation, Strict.
// Logical form: Condition, Expressions, Negation.
// Exactly one form must be populated.
type Expression struct {
	Key       string `yaml:"key,omitempty" json:"key,omitempty"`
	Operation string `yaml:"operation,omitempty" json:"operation,omitempty"` // empty means equals
	Values    []any  `yaml:"values,omitempty" json:"values,omitempty"`
	Strict    bool   `yaml:"strict,omitempty" json:"strict,omitempty"` // ALL values instead of ANY

	Condition   string       `yaml:"condition,omitempty" json:"condition,omitempty"`
	Expressions []Expression `yaml:"expressions,omitempty" json:"expressions,omitempty"`

	Negation bool `yaml:"negation,omitempty" json:"negation,omitempty"`
}

// IsBasic reports whether any basic-form field is populated.
func (e *Expression) IsBasic() bool {
	return e.Key != "" || e.Operation != "" || e.Values != nil || e.Strict
}

// IsLogical reports whether any logical-form field is populated.
func (e *Expression) IsLogical() bool {
	return e.Condition != "" || e.Expressions != nil
}

// Mutation is one path -> value instruction.
type Mutation struct {
	Path  string
	Value any
}

// Mutations is an ordered mapping of property path to value.
type Mutations []Mutation

// Paths returns the mutation paths in order.
func (m Mutations) Paths() []string {
	paths := make([]string, len(m))
	for i, mu := range m {
		paths[i] = mu.Path
	}
	return paths
}

// AsMutations converts a raw multiply/set definition into Mutations.
// Accepts Mutations or map[string]any (sorted by key). Returns ok=false for
// anything else, including nil.
func AsMutations(v any) (Mutations, bool) {
	switch m := v.(type) {
	case Mutations:
		return m, true
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Mutations, 0, len(m))
		for _, k := range keys {
			out = append(out, Mutation{Path: k, Value: Normalize(m[k])})
		}
		return out, true
	default:
		return nil, false
	}
}

// Selector pairs a predicate with mutations applied to every matching record.
type Selector struct {
	Query    *Expression
	Multiply any      // nil when absent; Mutations when well-formed
	Set      any      // nil when absent; Mutations when well-formed
	Priority *float64 // carried into metadata, never reorders application
}

// Override holds mutations for a single record, keyed by display name.
type Override struct {
	Multiply any
	Set      any
}

// NamedSelector is a selector with its configuration name.
type NamedSelector struct {
	Name     string
	Selector *Selector
}

// NamedOverride is an override with the display name it targets.
type NamedOverride struct {
	Name     string
	Override *Override
}

// SelectorSet is an ordered selector collection; order is application order.
type SelectorSet []NamedSelector

// OverrideSet is an ordered override collection; order is application order.
type OverrideSet []NamedOverride

// SelectorMetadata is derived per pass for one selector.
type SelectorMetadata struct {
	Name       string
	Matched    []RecordID // predicate true
	Affected   []RecordID // predicate true and at least one applicable mutation
	Properties []string   // union of multiply and set paths
	Valid      bool
	Priority   *float64
}

// OverrideMetadata is derived per pass for one override.
type OverrideMetadata struct {
	Name       string
	RecordID   RecordID
	Properties []string
}
