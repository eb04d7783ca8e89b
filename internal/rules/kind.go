// internal/rules/kind.go
package rules

import (
	"math"
	"reflect"

	"github.com/solatis/recordkeeper/internal/types"
)

/*
 * Runtime value kinds.
 *
 * There is no implicit coercion: a comparison or mutation is legal only
 * when both sides share a Kind. Arrays and objects are composite kinds and
 * are only ever compared structurally.
 *
 * Numbers are float64 after types.Normalize; the int cases below exist for
 * callers that build records in Go without going through a loader.
 */

// Kind classifies a property value.
type Kind int

const (
	KindUnknown Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindUnknown: "unknown",
	KindNull:    "null",
	KindBool:    "boolean",
	KindNumber:  "number",
	KindString:  "string",
	KindArray:   "array",
	KindObject:  "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsComposite reports whether the kind is an array or object.
func (k Kind) IsComposite() bool {
	return k == KindArray || k == KindObject
}

// KindOf returns the kind of v.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64, float32, int, int64, int32:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any, types.Record:
		return KindObject
	default:
		return KindUnknown
	}
}

// toFloat64 converts numeric kinds to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Number returns v as a float64 when it is a numeric kind and not NaN.
func Number(v any) (float64, bool) {
	f, ok := toFloat64(v)
	if !ok || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Equal compares two values structurally.
// Numbers compare by value regardless of Go numeric type; maps and slices
// compare element by element.
func Equal(a, b any) bool {
	if na, ok := toFloat64(a); ok {
		nb, ok := toFloat64(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any, types.Record:
		am, _ := asTree(av)
		bm, ok := asTree(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, ae := range am {
			be, ok := bm[k]
			if !ok || !Equal(ae, be) {
				return false
			}
		}
		return true
	case nil, bool, string:
		return a == b
	default:
		return reflect.DeepEqual(a, b)
	}
}
