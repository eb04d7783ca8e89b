// internal/rules/expression.go
package rules

import (
	"fmt"

	"github.com/solatis/recordkeeper/internal/types"
)

/*
 * Expression evaluation.
 *
 * Evaluates an Expression tree against one record and always returns a
 * boolean. Evaluation never fails across record boundaries: a malformed
 * node, a path fault or a kind mismatch is a closed failure, i.e. the
 * node evaluates to false before negation (true when negated).
 *
 * Basic flow:
 *   1. Resolve key (root or properties namespace)
 *   2. Absent value -> false before negation
 *   3. Composite value -> equals only, structural comparison
 *   4. Primitive value -> every comparison value must share its kind
 *   5. ANY (strict=false) or ALL (strict=true) across values
 *   6. Negation applied last
 *
 * Logical flow: children in order, short-circuit on the first deciding
 * child, negation applied to the combined result only.
 *
 * Explain runs the same algorithm but keeps a Trace per node for
 * diagnostics. Evaluate skips trace allocation.
 */

// Outcome describes how a node reached its result.
type Outcome int

const (
	OutcomeNoMatch Outcome = iota
	OutcomeMatch
	OutcomeAbsent
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "match"
	case OutcomeAbsent:
		return "absent"
	case OutcomeFault:
		return "fault"
	default:
		return "no-match"
	}
}

// Trace records the evaluation of one expression node.
type Trace struct {
	Expression *types.Expression
	Result     bool    // final result, negation applied
	Outcome    Outcome // pre-negation outcome
	Value      any     // resolved value (basic only)
	Cause      error   // fault cause
	Children   []Trace
}

// Evaluator evaluates expressions using a path resolver.
type Evaluator struct {
	Resolver Resolver
}

// NewEvaluator creates an evaluator over the given resolver.
func NewEvaluator(resolver Resolver) *Evaluator {
	return &Evaluator{Resolver: resolver}
}

// Evaluate reports whether record satisfies expr.
func (e *Evaluator) Evaluate(expr *types.Expression, record types.Record) bool {
	if expr == nil {
		return false
	}
	if err := WellFormed(expr); err != nil {
		return expr.Negation
	}
	return e.eval(expr, record, nil)
}

// Explain evaluates expr and returns the per-node trace.
func (e *Evaluator) Explain(expr *types.Expression, record types.Record) Trace {
	if expr == nil {
		return Trace{Outcome: OutcomeFault, Cause: types.ErrMalformedExpression}
	}
	if err := WellFormed(expr); err != nil {
		return Trace{Expression: expr, Result: expr.Negation, Outcome: OutcomeFault, Cause: err}
	}
	var trace Trace
	e.eval(expr, record, &trace)
	return trace
}

func (e *Evaluator) eval(expr *types.Expression, record types.Record, trace *Trace) bool {
	if expr.IsLogical() {
		return e.evalLogical(expr, record, trace)
	}
	return e.evalBasic(expr, record, trace)
}

// evalLogical reduces children with and/or, then negates.
func (e *Evaluator) evalLogical(expr *types.Expression, record types.Record, trace *Trace) bool {
	isAnd := expr.Condition == types.ConditionAnd
	combined := isAnd

	for i := range expr.Expressions {
		var childTrace *Trace
		if trace != nil {
			trace.Children = append(trace.Children, Trace{})
			childTrace = &trace.Children[len(trace.Children)-1]
		}
		matched := e.eval(&expr.Expressions[i], record, childTrace)
		if isAnd && !matched {
			combined = false
			break
		}
		if !isAnd && matched {
			combined = true
			break
		}
	}

	result := combined != expr.Negation
	if trace != nil {
		trace.Expression = expr
		trace.Result = result
		trace.Outcome = OutcomeNoMatch
		if combined {
			trace.Outcome = OutcomeMatch
		}
	}
	return result
}

// evalBasic compares the resolved key against the value list.
func (e *Evaluator) evalBasic(expr *types.Expression, record types.Record, trace *Trace) bool {
	matched, outcome, value, cause := e.matchBasic(expr, record)
	result := matched != expr.Negation
	if trace != nil {
		*trace = Trace{
			Expression: expr,
			Result:     result,
			Outcome:    outcome,
			Value:      value,
			Cause:      cause,
		}
	}
	return result
}

// matchBasic returns the pre-negation result. Faults and absent values
// both return false so negation flips them consistently.
func (e *Evaluator) matchBasic(expr *types.Expression, record types.Record) (bool, Outcome, any, error) {
	op, err := ParseOperation(expr.Operation)
	if err != nil {
		return false, OutcomeFault, nil, err
	}

	resolved, err := e.Resolver.Read(record, expr.Key)
	if err != nil {
		return false, OutcomeFault, nil, err
	}
	if !resolved.Found {
		return false, OutcomeAbsent, nil, nil
	}

	value := resolved.Value
	kind := KindOf(value)

	if kind.IsComposite() {
		if op != OpEquals {
			return false, OutcomeFault, value, errIncompatible{op: op, kind: kind}
		}
	} else {
		for _, target := range expr.Values {
			if tk := KindOf(target); tk != kind {
				return false, OutcomeFault, value, fmt.Errorf("value kind %s does not match %s", tk, kind)
			}
		}
	}

	for _, target := range expr.Values {
		ok, err := Compare(op, value, target)
		if err != nil {
			return false, OutcomeFault, value, err
		}
		if expr.Strict && !ok {
			return false, OutcomeNoMatch, value, nil
		}
		if !expr.Strict && ok {
			return true, OutcomeMatch, value, nil
		}
	}

	if expr.Strict {
		return true, OutcomeMatch, value, nil
	}
	return false, OutcomeNoMatch, value, nil
}
