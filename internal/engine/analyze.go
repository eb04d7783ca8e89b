// internal/engine/analyze.go
package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/solatis/recordkeeper/internal/mutate"
	"github.com/solatis/recordkeeper/internal/rules"
	"github.com/solatis/recordkeeper/internal/types"
)

/*
 * Selector analysis.
 *
 * For one selector: validate its shape, compute the records its query
 * matches, and the subset it would actually change (affected). Matching
 * uses the evaluator; affected uses Applicator.CanApplyAny, which never
 * mutates.
 *
 * Diagnostics are advisory. A selector whose Valid flag is true is always
 * applied, even when it matched nothing or would change nothing.
 */

// Validation is the result of validating one selector or override.
type Validation struct {
	WellFormed   bool
	HasMutations bool
	Problems     []string
}

// Analyzer computes selector metadata.
type Analyzer struct {
	resolver   rules.Resolver
	evaluator  *rules.Evaluator
	applicator *mutate.Applicator
	logger     *slog.Logger
}

// NewAnalyzer creates an Analyzer sharing the applicator's resolver.
func NewAnalyzer(resolver rules.Resolver, applicator *mutate.Applicator, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{
		resolver:   resolver,
		evaluator:  rules.NewEvaluator(resolver),
		applicator: applicator,
		logger:     logger,
	}
}

// Validate checks the query and mutation shapes of a selector.
func (a *Analyzer) Validate(sel *types.Selector) Validation {
	v := Validation{WellFormed: true}
	if sel == nil {
		v.WellFormed = false
		v.Problems = append(v.Problems, "selector is empty")
		return v
	}
	if err := rules.WellFormed(sel.Query); err != nil {
		v.WellFormed = false
		v.Problems = append(v.Problems, err.Error())
	}
	a.validateMutations(&v, "multiply", sel.Multiply, true)
	a.validateMutations(&v, "set", sel.Set, false)
	return v
}

// ValidateOverride checks the mutation shapes of an override.
func (a *Analyzer) ValidateOverride(ov *types.Override) Validation {
	v := Validation{WellFormed: true}
	if ov == nil {
		v.WellFormed = false
		v.Problems = append(v.Problems, "override is empty")
		return v
	}
	a.validateMutations(&v, "multiply", ov.Multiply, true)
	a.validateMutations(&v, "set", ov.Set, false)
	return v
}

func (a *Analyzer) validateMutations(v *Validation, field string, raw any, numeric bool) {
	if raw == nil {
		return
	}
	mutations, ok := types.AsMutations(raw)
	if !ok {
		v.WellFormed = false
		v.Problems = append(v.Problems, fmt.Sprintf("%s: %v (got %T)", field, types.ErrMalformedMutations, raw))
		return
	}
	for _, m := range mutations {
		if _, err := a.resolver.Split(m.Path); err != nil {
			v.WellFormed = false
			v.Problems = append(v.Problems, fmt.Sprintf("%s: path %q: %v", field, m.Path, err))
			continue
		}
		if numeric {
			if _, ok := rules.Number(m.Value); !ok {
				// advisory: rejected per record as an invalid multiplier
				v.Problems = append(v.Problems, fmt.Sprintf("%s: path %q has non-numeric multiplier %v", field, m.Path, m.Value))
			}
		}
	}
	if len(mutations) > 0 {
		v.HasMutations = true
	}
}

// MatchingIDs returns the sorted IDs of records the selector query matches.
func (a *Analyzer) MatchingIDs(records types.Records, sel *types.Selector) []types.RecordID {
	var ids []types.RecordID
	if sel == nil || sel.Query == nil {
		return ids
	}
	for _, id := range records.SortedIDs() {
		if a.evaluator.Evaluate(sel.Query, records[id]) {
			ids = append(ids, id)
		}
	}
	return ids
}

// AffectedIDs returns the matching IDs for which at least one multiply or
// set mutation is type-compatible.
func (a *Analyzer) AffectedIDs(records types.Records, sel *types.Selector) []types.RecordID {
	return a.affected(records, a.MatchingIDs(records, sel), sel)
}

func (a *Analyzer) affected(records types.Records, matched []types.RecordID, sel *types.Selector) []types.RecordID {
	var ids []types.RecordID
	if sel == nil {
		return ids
	}
	multiply, _ := types.AsMutations(sel.Multiply)
	set, _ := types.AsMutations(sel.Set)
	for _, id := range matched {
		record := records[id]
		if a.applicator.CanApplyAny(record, multiply, mutate.ModeMultiply) ||
			a.applicator.CanApplyAny(record, set, mutate.ModeSet) {
			ids = append(ids, id)
		}
	}
	return ids
}

// BuildMetadata derives SelectorMetadata and emits advisory diagnostics.
// When withAffected is false, Affected is left nil and callers fall back to
// Matched.
func (a *Analyzer) BuildMetadata(name string, sel *types.Selector, records types.Records, withAffected bool) types.SelectorMetadata {
	meta := types.SelectorMetadata{Name: name}
	v := a.Validate(sel)
	meta.Valid = v.WellFormed && v.HasMutations
	if sel != nil {
		meta.Priority = sel.Priority
		meta.Properties = touchedPaths(sel.Multiply, sel.Set)
	}

	switch {
	case !v.WellFormed:
		a.logger.Warn("invalid selector",
			slog.String("selector", name),
			slog.String("problems", strings.Join(v.Problems, "; ")),
		)
		return meta
	case !v.HasMutations:
		a.logger.Warn("selector has no multiply or set, skipping",
			slog.String("selector", name),
		)
		return meta
	case len(v.Problems) > 0:
		a.logger.Warn("selector has advisory problems",
			slog.String("selector", name),
			slog.String("problems", strings.Join(v.Problems, "; ")),
		)
	}

	meta.Matched = a.MatchingIDs(records, sel)
	if withAffected {
		meta.Affected = a.affected(records, meta.Matched, sel)
	}

	switch {
	case len(meta.Matched) == 0:
		a.logger.Warn("selector matched no records", slog.String("selector", name))
	case withAffected && len(meta.Affected) == 0:
		a.logger.Warn("selector matched records but would change none",
			slog.String("selector", name),
			slog.Int("matched", len(meta.Matched)),
		)
	default:
		a.logger.Debug("selector analysed",
			slog.String("selector", name),
			slog.Int("matched", len(meta.Matched)),
			slog.Int("affected", len(meta.Affected)),
		)
	}
	return meta
}

// touchedPaths returns the union of multiply and set paths in first-seen order.
func touchedPaths(raws ...any) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, raw := range raws {
		mutations, ok := types.AsMutations(raw)
		if !ok {
			continue
		}
		for _, m := range mutations {
			if !seen[m.Path] {
				seen[m.Path] = true
				paths = append(paths, m.Path)
			}
		}
	}
	return paths
}
