// Package types provides domain models shared across RecordKeeper components.
//
// Records are plain Go trees (map[string]any, []any, float64, string, bool,
// nil) so any loader that produces generic JSON-shaped data can feed the
// engine directly. Selector and override definitions live in selectors.go;
// sentinel errors live in errors.go.
package types

import (
	"sort"
)

// RecordID identifies one record in a collection.
// String alias keeps identifiers distinct from display names in signatures.
type RecordID = string

// Record is one mutable property tree.
// The engine mutates values inside it but never adds or removes records.
type Record map[string]any

// Records maps record identifiers to records.
type Records map[RecordID]Record

// SortedIDs returns all record identifiers in ascending order.
// Every pass iterates records in this order so logs and reports are stable.
func (r Records) SortedIDs() []RecordID {
	ids := make([]RecordID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resource limits enforced by the engine.
const (
	// MaxPathDepth prevents unbounded recursion during path resolution.
	// 16 levels covers deeply nested item properties (a.b.c...).
	MaxPathDepth = 16

	// MaxExpressionDepth bounds logical expression nesting.
	MaxExpressionDepth = 32

	// MaxExpressionValues limits the value list of a basic expression.
	// 64 values supports enum-style checks without quadratic comparison cost.
	MaxExpressionValues = 64
)

// Normalize converts a decoded value into the engine's value model.
// Integer types become float64 and map[any]any becomes map[string]any.
// Loaders call it once at the boundary so comparisons never see mixed
// numeric types.
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case Record:
		out := make(map[string]any, len(n))
		for k, elem := range n {
			out[k] = Normalize(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, elem := range n {
			out[k] = Normalize(elem)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, elem := range n {
			if ks, ok := k.(string); ok {
				out[ks] = Normalize(elem)
			}
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, elem := range n {
			out[i] = Normalize(elem)
		}
		return out
	default:
		return v
	}
}

// NormalizeRecord normalises every value of a record in place.
func NormalizeRecord(r Record) Record {
	for k, v := range r {
		r[k] = Normalize(v)
	}
	return r
}
