// internal/rules/expression_test.go
package rules

import (
	"testing"

	"github.com/solatis/recordkeeper/internal/types"
)

func weaponRecord(class string) types.Record {
	props := map[string]any{
		"Weight":   3.3,
		"Caliber":  "Caliber545x39",
		"Slots":    []any{"mod_muzzle", "mod_stock"},
		"Recoil":   map[string]any{"Vertical": float64(140)},
		"Foldable": true,
	}
	if class != "" {
		props["weapClass"] = class
	}
	return types.Record{"_id": "w1", "_name": "weapon", "_parent": "5447b5f14bdc2d61278b4567", "_props": props}
}

// Predicate truth table from the equals/any/negation contract.
func TestEvaluate_TruthTable(t *testing.T) {
	base := types.Expression{
		Key:       "weapClass",
		Operation: "equals",
		Values:    []any{"rifle", "pistol"},
	}
	negated := base
	negated.Negation = true

	tests := []struct {
		name  string
		class string
		want  bool
		neg   bool
	}{
		{name: "rifle matches", class: "rifle", want: true},
		{name: "shotgun no match", class: "shotgun", want: false},
		{name: "missing no match", class: "", want: false},
		{name: "negated rifle", class: "rifle", want: false, neg: true},
		{name: "negated shotgun", class: "shotgun", want: true, neg: true},
		{name: "negated missing", class: "", want: true, neg: true},
	}

	ev := NewEvaluator(DefaultResolver())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := base
			if tt.neg {
				expr = negated
			}
			if got := ev.Evaluate(&expr, weaponRecord(tt.class)); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Operations(t *testing.T) {
	tests := []struct {
		name string
		expr types.Expression
		want bool
	}{
		{name: "greater than", expr: types.Expression{Key: "Weight", Operation: "greater_than", Values: []any{3.0}}, want: true},
		{name: "greater than equal value", expr: types.Expression{Key: "Weight", Operation: "greater_than", Values: []any{3.3}}, want: false},
		{name: "less than", expr: types.Expression{Key: "Recoil.Vertical", Operation: "less_than", Values: []any{float64(200)}}, want: true},
		{name: "starts with", expr: types.Expression{Key: "Caliber", Operation: "starts_with", Values: []any{"Caliber5"}}, want: true},
		{name: "contains", expr: types.Expression{Key: "Caliber", Operation: "contains", Values: []any{"545"}}, want: true},
		{name: "ends with", expr: types.Expression{Key: "Caliber", Operation: "ends_with", Values: []any{"x39"}}, want: true},
		{name: "ends with miss", expr: types.Expression{Key: "Caliber", Operation: "ends_with", Values: []any{"x54"}}, want: false},
		{name: "default operation is equals", expr: types.Expression{Key: "Foldable", Values: []any{true}}, want: true},
		{name: "root namespace", expr: types.Expression{Key: "_parent", Values: []any{"5447b5f14bdc2d61278b4567"}}, want: true},
		{name: "array structural equality", expr: types.Expression{Key: "Slots", Values: []any{[]any{"mod_muzzle", "mod_stock"}}}, want: true},
		{name: "array structural inequality", expr: types.Expression{Key: "Slots", Values: []any{[]any{"mod_stock", "mod_muzzle"}}}, want: false},
		{name: "object structural equality", expr: types.Expression{Key: "Recoil", Values: []any{map[string]any{"Vertical": float64(140)}}}, want: true},
	}

	ev := NewEvaluator(DefaultResolver())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ev.Evaluate(&tt.expr, weaponRecord("rifle")); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Strict(t *testing.T) {
	ev := NewEvaluator(DefaultResolver())
	record := weaponRecord("rifle")

	anyOf := types.Expression{Key: "Caliber", Operation: "contains", Values: []any{"545", "762"}}
	allOf := anyOf
	allOf.Strict = true
	allBoth := types.Expression{Key: "Caliber", Operation: "contains", Values: []any{"545", "39"}, Strict: true}

	if !ev.Evaluate(&anyOf, record) {
		t.Errorf("Evaluate(any) = false, want true")
	}
	if ev.Evaluate(&allOf, record) {
		t.Errorf("Evaluate(all, one miss) = true, want false")
	}
	if !ev.Evaluate(&allBoth, record) {
		t.Errorf("Evaluate(all, both hit) = false, want true")
	}
}

// Kind mismatches and path faults fail closed.
func TestEvaluate_FailsClosed(t *testing.T) {
	tests := []struct {
		name string
		expr types.Expression
	}{
		{name: "string value against number", expr: types.Expression{Key: "Weight", Values: []any{"3.3"}}},
		{name: "mixed value kinds", expr: types.Expression{Key: "Weight", Values: []any{3.3, "heavy"}}},
		{name: "numeric op on string", expr: types.Expression{Key: "Caliber", Operation: "greater_than", Values: []any{"a"}}},
		{name: "string op on number", expr: types.Expression{Key: "Weight", Operation: "contains", Values: []any{3.0}}},
		{name: "string op on array", expr: types.Expression{Key: "Slots", Operation: "contains", Values: []any{"mod_stock"}}},
		{name: "path through scalar", expr: types.Expression{Key: "Weight.Value", Values: []any{1.0}}},
		{name: "malformed expression", expr: types.Expression{Key: "Weight"}},
	}

	ev := NewEvaluator(DefaultResolver())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr := tt.expr
			if ev.Evaluate(&expr, weaponRecord("rifle")) {
				t.Errorf("Evaluate() = true, want false")
			}
			expr.Negation = true
			if !ev.Evaluate(&expr, weaponRecord("rifle")) {
				t.Errorf("Evaluate(negated) = false, want true")
			}
		})
	}
}

func TestEvaluate_Logical(t *testing.T) {
	isRifle := types.Expression{Key: "weapClass", Values: []any{"rifle"}}
	isHeavy := types.Expression{Key: "Weight", Operation: "greater_than", Values: []any{5.0}}

	and := types.Expression{Condition: "and", Expressions: []types.Expression{isRifle, isHeavy}}
	or := types.Expression{Condition: "or", Expressions: []types.Expression{isRifle, isHeavy}}
	notAnd := and
	notAnd.Negation = true
	nested := types.Expression{Condition: "or", Expressions: []types.Expression{
		{Condition: "and", Expressions: []types.Expression{isRifle, isHeavy}},
		{Key: "Foldable", Values: []any{true}},
	}}

	tests := []struct {
		name   string
		expr   types.Expression
		record types.Record
		want   bool
	}{
		{name: "and both", expr: and, record: heavy(weaponRecord("rifle")), want: true},
		{name: "and one", expr: and, record: weaponRecord("rifle"), want: false},
		{name: "or one", expr: or, record: weaponRecord("rifle"), want: true},
		{name: "or none", expr: or, record: weaponRecord("pistol"), want: false},
		{name: "negation inverts combined result", expr: notAnd, record: weaponRecord("rifle"), want: true},
		{name: "negation inverts combined match", expr: notAnd, record: heavy(weaponRecord("rifle")), want: false},
		{name: "nested", expr: nested, record: weaponRecord("pistol"), want: true},
	}

	ev := NewEvaluator(DefaultResolver())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ev.Evaluate(&tt.expr, tt.record); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func heavy(r types.Record) types.Record {
	r["_props"].(map[string]any)["Weight"] = 7.5
	return r
}

func TestExplain(t *testing.T) {
	expr := types.Expression{Condition: "and", Expressions: []types.Expression{
		{Key: "weapClass", Values: []any{"rifle"}},
		{Key: "Weight", Values: []any{"heavy"}},
		{Key: "Ergonomics", Values: []any{1.0}},
	}}

	trace := NewEvaluator(DefaultResolver()).Explain(&expr, weaponRecord("rifle"))

	if trace.Result {
		t.Errorf("Result = true, want false")
	}
	// and short-circuits after the faulted second child
	if len(trace.Children) != 2 {
		t.Fatalf("len(Children) = %d, want 2", len(trace.Children))
	}
	if trace.Children[0].Outcome != OutcomeMatch {
		t.Errorf("Children[0].Outcome = %v, want match", trace.Children[0].Outcome)
	}
	if trace.Children[1].Outcome != OutcomeFault || trace.Children[1].Cause == nil {
		t.Errorf("Children[1] = %+v, want fault with cause", trace.Children[1])
	}
	if trace.Children[1].Value != 3.3 {
		t.Errorf("Children[1].Value = %v, want 3.3", trace.Children[1].Value)
	}
}

func TestExplain_Absent(t *testing.T) {
	expr := types.Expression{Key: "Ergonomics", Values: []any{1.0}, Negation: true}
	trace := NewEvaluator(DefaultResolver()).Explain(&expr, weaponRecord("rifle"))
	if trace.Outcome != OutcomeAbsent {
		t.Errorf("Outcome = %v, want absent", trace.Outcome)
	}
	if !trace.Result {
		t.Errorf("Result = false, want true (negated absent)")
	}
}
