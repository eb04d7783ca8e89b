// internal/engine/engine.go
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/recordkeeper/internal/mutate"
	"github.com/solatis/recordkeeper/internal/rules"
	"github.com/solatis/recordkeeper/internal/types"
)

/*
 * Pass orchestration.
 *
 * A pass analyses every selector, resolves overrides to records, reports
 * conflicts, applies selectors in configuration order (skipping records an
 * override owns) and finally applies overrides. Within one target record
 * multiply runs before set.
 *
 * The engine is synchronous and assumes exclusive access to the record
 * collection for the duration of Run. Only a malformed set aborts a pass,
 * and it does so before the first mutation.
 */

// DefaultNameKey is the root key holding a record's display name.
const DefaultNameKey = "_name"

// Engine runs passes over record collections.
type Engine struct {
	resolver        rules.Resolver
	logger          *slog.Logger
	nameKey         string
	affectedEnabled bool
	now             func() time.Time

	applicator *mutate.Applicator
	analyzer   *Analyzer
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver sets the path namespace settings.
func WithResolver(r rules.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithLogger sets the diagnostic log sink.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNameKey sets the root key used to resolve override display names.
func WithNameKey(key string) Option {
	return func(e *Engine) {
		if key != "" {
			e.nameKey = key
		}
	}
}

// WithAffectedAnalysis toggles the affected-ID computation. When disabled,
// selectors are applied over their matched IDs and the applicator rejects
// incompatible mutations per property.
func WithAffectedAnalysis(enabled bool) Option {
	return func(e *Engine) { e.affectedEnabled = enabled }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		resolver:        rules.DefaultResolver(),
		logger:          slog.New(slog.DiscardHandler),
		nameKey:         DefaultNameKey,
		affectedEnabled: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.applicator = mutate.New(e.resolver, e.logger)
	e.analyzer = NewAnalyzer(e.resolver, e.applicator, e.logger)
	return e
}

// Analyzer exposes the selector analyzer used by this engine.
func (e *Engine) Analyzer() *Analyzer {
	return e.analyzer
}

// Analysis is the dry-run result of a pass.
type Analysis struct {
	Selectors  []types.SelectorMetadata
	Overrides  []types.OverrideMetadata
	Unresolved []string // override names that matched no record
	Conflicts  []Conflict
}

// Analyze builds selector and override metadata and detects conflicts
// without mutating any record.
func (e *Engine) Analyze(records types.Records, selectors types.SelectorSet, overrides types.OverrideSet) (*Analysis, error) {
	if err := checkSets(records, selectors, overrides); err != nil {
		return nil, err
	}

	analysis := &Analysis{}
	for _, ns := range selectors {
		analysis.Selectors = append(analysis.Selectors,
			e.analyzer.BuildMetadata(ns.Name, ns.Selector, records, e.affectedEnabled))
	}

	names := newNameIndex(records, e.nameKey)
	for _, no := range overrides {
		v := e.analyzer.ValidateOverride(no.Override)
		if !v.WellFormed {
			e.logger.Warn("invalid override",
				slog.String("override", no.Name),
				slog.Any("problems", v.Problems),
			)
			analysis.Unresolved = append(analysis.Unresolved, no.Name)
			continue
		}
		id, err := names.resolve(no.Name, e.logger)
		if err != nil {
			e.logger.Warn("override skipped",
				slog.String("override", no.Name),
				slog.String("error", err.Error()),
			)
			analysis.Unresolved = append(analysis.Unresolved, no.Name)
			continue
		}
		analysis.Overrides = append(analysis.Overrides, types.OverrideMetadata{
			Name:       no.Name,
			RecordID:   id,
			Properties: touchedPaths(no.Override.Multiply, no.Override.Set),
		})
	}

	analysis.Conflicts = DetectConflicts(records, analysis.Selectors, analysis.Overrides)
	for _, c := range analysis.Conflicts {
		ids := make([]string, len(c.Records))
		for i, rc := range c.Records {
			ids[i] = rc.RecordID
		}
		e.logger.Warn("unresolved selector conflict",
			slog.String("first", c.First),
			slog.String("second", c.Second),
			slog.Any("properties", c.Properties),
			slog.Any("records", ids),
		)
	}
	return analysis, nil
}

// Run executes a full pass and returns the change report.
// Only a malformed selector or override collection is returned as an
// error, and always before any record is mutated.
func (e *Engine) Run(records types.Records, selectors types.SelectorSet, overrides types.OverrideSet) (*Report, error) {
	started := e.now()
	runID := types.NewRunID()

	analysis, err := e.Analyze(records, selectors, overrides)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:       runID,
		Fingerprint: Fingerprint(records, selectors, overrides),
		StartedAt:   started,
		Unresolved:  analysis.Unresolved,
		Conflicts:   analysis.Conflicts,
	}
	e.logger.Info("pass started",
		slog.String("run_id", string(runID)),
		slog.Int("records", len(records)),
		slog.Int("selectors", len(selectors)),
		slog.Int("overrides", len(overrides)),
	)

	owned := make(map[types.RecordID]bool, len(analysis.Overrides))
	for _, ov := range analysis.Overrides {
		owned[ov.RecordID] = true
	}
	changed := make(map[types.RecordID]bool)

	for i, meta := range analysis.Selectors {
		result := SelectorResult{Name: meta.Name, Priority: meta.Priority, Matched: len(meta.Matched), Affected: len(meta.Affected)}
		if !meta.Valid {
			report.Invalid = append(report.Invalid, meta.Name)
			report.Selectors = append(report.Selectors, result)
			continue
		}

		sel := selectors[i].Selector
		multiply, _ := types.AsMutations(sel.Multiply)
		set, _ := types.AsMutations(sel.Set)

		targets := meta.Affected
		if !e.affectedEnabled {
			targets = meta.Matched
		}
		for _, id := range targets {
			if owned[id] {
				result.Skipped++
				continue
			}
			record := records[id]
			n := e.applicator.ApplyAllMultiply(id, record, multiply)
			n += e.applicator.ApplyAllSet(id, record, set)
			if n > 0 {
				result.Changes += n
				result.Records++
				changed[id] = true
			}
		}
		e.logger.Info("selector applied",
			slog.String("selector", meta.Name),
			slog.Int("changes", result.Changes),
			slog.Int("records", result.Records),
			slog.Int("skipped_for_override", result.Skipped),
		)
		report.Selectors = append(report.Selectors, result)
	}

	byName := make(map[string]*types.Override, len(overrides))
	for _, no := range overrides {
		byName[no.Name] = no.Override
	}
	for _, meta := range analysis.Overrides {
		ov := byName[meta.Name]
		multiply, _ := types.AsMutations(ov.Multiply)
		set, _ := types.AsMutations(ov.Set)

		record := records[meta.RecordID]
		n := e.applicator.ApplyAllMultiply(meta.RecordID, record, multiply)
		n += e.applicator.ApplyAllSet(meta.RecordID, record, set)
		if n > 0 {
			changed[meta.RecordID] = true
		}
		e.logger.Info("override applied",
			slog.String("override", meta.Name),
			slog.String("record", meta.RecordID),
			slog.Int("changes", n),
		)
		report.Overrides = append(report.Overrides, OverrideResult{
			Name:     meta.Name,
			RecordID: meta.RecordID,
			Changes:  n,
		})
	}

	for _, s := range report.Selectors {
		report.TotalChanges += s.Changes
	}
	for _, o := range report.Overrides {
		report.TotalChanges += o.Changes
	}
	report.TotalRecords = len(changed)
	report.Duration = e.now().Sub(started)

	e.logger.Info("pass completed",
		slog.String("run_id", string(runID)),
		slog.Int("changes", report.TotalChanges),
		slog.Int("records", report.TotalRecords),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// checkSets rejects structurally malformed collections before any work.
func checkSets(records types.Records, selectors types.SelectorSet, overrides types.OverrideSet) error {
	if records == nil {
		return fmt.Errorf("%w: %w", types.ErrMalformedSelectorSet, types.ErrNilRecords)
	}
	seen := make(map[string]bool, len(selectors))
	for i, ns := range selectors {
		if ns.Name == "" {
			return fmt.Errorf("%w: selector %d has no name", types.ErrMalformedSelectorSet, i)
		}
		if ns.Selector == nil {
			return fmt.Errorf("%w: selector %q is nil", types.ErrMalformedSelectorSet, ns.Name)
		}
		if seen[ns.Name] {
			return fmt.Errorf("%w: %w: selector %q", types.ErrMalformedSelectorSet, types.ErrDuplicateName, ns.Name)
		}
		seen[ns.Name] = true
	}
	seen = make(map[string]bool, len(overrides))
	for i, no := range overrides {
		if no.Name == "" {
			return fmt.Errorf("%w: override %d has no name", types.ErrMalformedSelectorSet, i)
		}
		if no.Override == nil {
			return fmt.Errorf("%w: override %q is nil", types.ErrMalformedSelectorSet, no.Name)
		}
		if seen[no.Name] {
			return fmt.Errorf("%w: %w: override %q", types.ErrMalformedSelectorSet, types.ErrDuplicateName, no.Name)
		}
		seen[no.Name] = true
	}
	return nil
}

// nameIndex resolves override display names to record IDs.
type nameIndex struct {
	records types.Records
	byName  map[string][]types.RecordID
}

func newNameIndex(records types.Records, nameKey string) *nameIndex {
	idx := &nameIndex{records: records, byName: make(map[string][]types.RecordID)}
	for _, id := range records.SortedIDs() {
		if name, ok := records[id][nameKey].(string); ok {
			idx.byName[name] = append(idx.byName[name], id)
		}
	}
	return idx
}

// resolve returns the record for a display name. An exact record ID wins;
// otherwise the first record in sorted ID order carrying that name.
func (x *nameIndex) resolve(name string, logger *slog.Logger) (types.RecordID, error) {
	if _, ok := x.records[name]; ok {
		return name, nil
	}
	ids := x.byName[name]
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: %q", types.ErrUnresolvedName, name)
	}
	if len(ids) > 1 {
		logger.Warn("override name is ambiguous, using first record",
			slog.String("override", name),
			slog.String("record", ids[0]),
			slog.Int("candidates", len(ids)),
		)
	}
	return ids[0], nil
}
