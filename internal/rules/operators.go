// internal/rules/operators.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/recordkeeper/internal/types"
)

/*
 * Operation comparison logic.
 *
 * Implements the six basic-expression operations with an explicit
 * compatibility table instead of runtime coercion:
 *   - equals: every kind, structural for arrays/objects
 *   - greater_than/less_than: numbers only
 *   - starts_with/contains/ends_with: strings only (substring predicates)
 *
 * Compare returns an error for an incompatible kind; the evaluator turns
 * that error into a closed failure for the whole expression.
 */

// Operation mirrors the operation names of basic expressions.
type Operation int

const (
	OpEquals Operation = iota
	OpGreaterThan
	OpLessThan
	OpStartsWith
	OpContains
	OpEndsWith
)

var operationNames = map[string]Operation{
	"":                        OpEquals,
	types.OperationEquals:     OpEquals,
	types.OperationGreater:    OpGreaterThan,
	types.OperationLess:       OpLessThan,
	types.OperationStartsWith: OpStartsWith,
	types.OperationContains:   OpContains,
	types.OperationEndsWith:   OpEndsWith,
}

func (op Operation) String() string {
	switch op {
	case OpEquals:
		return types.OperationEquals
	case OpGreaterThan:
		return types.OperationGreater
	case OpLessThan:
		return types.OperationLess
	case OpStartsWith:
		return types.OperationStartsWith
	case OpContains:
		return types.OperationContains
	case OpEndsWith:
		return types.OperationEndsWith
	default:
		return "unknown"
	}
}

// ParseOperation maps an operation name to Operation. Empty means equals.
func ParseOperation(name string) (Operation, error) {
	op, ok := operationNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", types.ErrUnknownOperation, name)
	}
	return op, nil
}

// Supports reports whether op is legal for values of kind k.
func (op Operation) Supports(k Kind) bool {
	switch op {
	case OpEquals:
		return k != KindUnknown
	case OpGreaterThan, OpLessThan:
		return k == KindNumber
	case OpStartsWith, OpContains, OpEndsWith:
		return k == KindString
	default:
		return false
	}
}

// errIncompatible is returned by Compare when op does not support the kinds.
type errIncompatible struct {
	op   Operation
	kind Kind
}

func (e errIncompatible) Error() string {
	return fmt.Sprintf("operation %s not supported for %s values", e.op, e.kind)
}

// Compare applies op to the resolved value and one target value.
func Compare(op Operation, value, target any) (bool, error) {
	kind := KindOf(value)
	if !op.Supports(kind) {
		return false, errIncompatible{op: op, kind: kind}
	}
	if op != OpEquals && KindOf(target) != kind {
		return false, errIncompatible{op: op, kind: KindOf(target)}
	}

	switch op {
	case OpEquals:
		return Equal(value, target), nil
	case OpGreaterThan:
		return compareNumeric(value, target) > 0, nil
	case OpLessThan:
		return compareNumeric(value, target) < 0, nil
	case OpStartsWith:
		return strings.HasPrefix(value.(string), target.(string)), nil
	case OpContains:
		return strings.Contains(value.(string), target.(string)), nil
	case OpEndsWith:
		return strings.HasSuffix(value.(string), target.(string)), nil
	default:
		return false, errIncompatible{op: op, kind: kind}
	}
}

// compareNumeric performs three-way numeric comparison (-1/0/1).
// Returns 0 for incomparable types.
func compareNumeric(a, b any) int {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	if !oka || !okb {
		return 0
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	default:
		return 0
	}
}
