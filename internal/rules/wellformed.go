// internal/rules/wellformed.go
package rules

import (
	"fmt"

	"github.com/solatis/recordkeeper/internal/types"
)

/*
 * Structural validation of expressions.
 *
 * Moves shape errors to load/metadata time so evaluation can assume a
 * well-formed tree. A basic expression needs a key, a known operation and
 * a non-empty value list; a logical expression needs a known condition and
 * a non-empty list of well-formed children. An expression populating both
 * forms, or neither, is rejected.
 *
 * Operation/value kind agreement is NOT checked here: values are compared
 * against the record at evaluation time, and a mismatch there fails closed.
 */

// WellFormed returns nil when expr is a valid basic or logical expression.
// The returned error wraps types.ErrMalformedExpression and names the
// offending node.
func WellFormed(expr *types.Expression) error {
	return wellFormed(expr, "query", 0)
}

// IsWellFormed is the boolean form of WellFormed.
func IsWellFormed(expr *types.Expression) bool {
	return WellFormed(expr) == nil
}

func wellFormed(expr *types.Expression, at string, depth int) error {
	if expr == nil {
		return fmt.Errorf("%w: %s is missing", types.ErrMalformedExpression, at)
	}
	if depth > types.MaxExpressionDepth {
		return fmt.Errorf("%w: %s nests deeper than %d", types.ErrMalformedExpression, at, types.MaxExpressionDepth)
	}

	basic, logical := expr.IsBasic(), expr.IsLogical()
	switch {
	case basic && logical:
		return fmt.Errorf("%w: %s mixes basic and logical fields", types.ErrMalformedExpression, at)
	case basic:
		return wellFormedBasic(expr, at)
	case logical:
		if expr.Condition != types.ConditionAnd && expr.Condition != types.ConditionOr {
			return fmt.Errorf("%w: %s has unknown condition %q", types.ErrMalformedExpression, at, expr.Condition)
		}
		if len(expr.Expressions) == 0 {
			return fmt.Errorf("%w: %s has no expressions", types.ErrMalformedExpression, at)
		}
		for i := range expr.Expressions {
			if err := wellFormed(&expr.Expressions[i], fmt.Sprintf("%s.expressions[%d]", at, i), depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s is empty", types.ErrMalformedExpression, at)
	}
}

func wellFormedBasic(expr *types.Expression, at string) error {
	if expr.Key == "" {
		return fmt.Errorf("%w: %s has no key", types.ErrMalformedExpression, at)
	}
	if _, err := ParseOperation(expr.Operation); err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrMalformedExpression, at, err)
	}
	if len(expr.Values) == 0 {
		return fmt.Errorf("%w: %s has no values", types.ErrMalformedExpression, at)
	}
	if len(expr.Values) > types.MaxExpressionValues {
		return fmt.Errorf("%w: %s has more than %d values", types.ErrMalformedExpression, at, types.MaxExpressionValues)
	}
	for _, v := range expr.Values {
		if KindOf(v) == KindUnknown {
			return fmt.Errorf("%w: %s has value of unsupported type %T", types.ErrMalformedExpression, at, v)
		}
	}
	return nil
}
