package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/recordkeeper/internal/engine"
	"github.com/solatis/recordkeeper/internal/types"
)

// Change kinds stored in run_changes.kind.
const (
	KindSelector = "selector"
	KindOverride = "override"
)

// RunSummary is one recorded pass.
type RunSummary struct {
	RunID        types.RunID
	Fingerprint  string
	StartedAt    time.Time
	Duration     time.Duration
	TotalChanges int
	TotalRecords int
	Invalid      int
	Unresolved   int
	Conflicts    int
}

// RunChange is the stored result of one selector or override in a pass.
type RunChange struct {
	RunID    types.RunID `db:"run_id"`
	Seq      int         `db:"seq"`
	Kind     string      `db:"kind"`
	Name     string      `db:"name"`
	RecordID string      `db:"record_id"`
	Matched  int         `db:"matched"`
	Affected int         `db:"affected"`
	Changes  int         `db:"changes"`
	Records  int         `db:"records"`
	Skipped  int         `db:"skipped"`
}

type runRow struct {
	RunID           string `db:"run_id"`
	Fingerprint     string `db:"fingerprint"`
	StartedAt       string `db:"started_at"`
	DurationMs      int64  `db:"duration_ms"`
	TotalChanges    int    `db:"total_changes"`
	TotalRecords    int    `db:"total_records"`
	InvalidCount    int    `db:"invalid_count"`
	UnresolvedCount int    `db:"unresolved_count"`
	ConflictCount   int    `db:"conflict_count"`
}

func (r runRow) summary() (RunSummary, error) {
	started, err := parseTimestamp(r.StartedAt)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: invalid started_at %q: %w", r.RunID, r.StartedAt, err)
	}
	return RunSummary{
		RunID:        types.RunID(r.RunID),
		Fingerprint:  r.Fingerprint,
		StartedAt:    started,
		Duration:     time.Duration(r.DurationMs) * time.Millisecond,
		TotalChanges: r.TotalChanges,
		TotalRecords: r.TotalRecords,
		Invalid:      r.InvalidCount,
		Unresolved:   r.UnresolvedCount,
		Conflicts:    r.ConflictCount,
	}, nil
}

// History records engine reports. The schema must be migrated first.
type History struct {
	db      *sqlx.DB
	queries *Queries
	dialect dialect
}

// NewHistory returns a History over an open, migrated database.
func NewHistory(db *sqlx.DB) (*History, error) {
	d, err := dialectFor(db)
	if err != nil {
		return nil, err
	}
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &History{db: db, queries: q, dialect: d}, nil
}

// Save stores a report and its per-selector and per-override results in
// one transaction.
func (h *History) Save(report *engine.Report) error {
	tx, err := h.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = h.queries.ExecTx(tx, "insert-run",
		string(report.RunID),
		report.Fingerprint,
		h.dialect.timestamp(report.StartedAt),
		report.Duration.Milliseconds(),
		report.TotalChanges,
		report.TotalRecords,
		len(report.Invalid),
		len(report.Unresolved),
		len(report.Conflicts),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}

	seq := 0
	for _, s := range report.Selectors {
		_, err := h.queries.ExecTx(tx, "insert-run-change",
			string(report.RunID), seq, KindSelector, s.Name, "",
			s.Matched, s.Affected, s.Changes, s.Records, s.Skipped,
		)
		if err != nil {
			return fmt.Errorf("failed to insert selector %q: %w", s.Name, err)
		}
		seq++
	}
	for _, o := range report.Overrides {
		changed := 0
		if o.Changes > 0 {
			changed = 1
		}
		_, err := h.queries.ExecTx(tx, "insert-run-change",
			string(report.RunID), seq, KindOverride, o.Name, o.RecordID,
			1, 1, o.Changes, changed, 0,
		)
		if err != nil {
			return fmt.Errorf("failed to insert override %q: %w", o.Name, err)
		}
		seq++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", report.RunID, err)
	}
	return nil
}

// List returns up to limit runs, most recent first.
func (h *History) List(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := h.queries.Select("list-runs", &rows, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]RunSummary, 0, len(rows))
	for _, r := range rows {
		s, err := r.summary()
		if err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	return runs, nil
}

// Get returns one run.
func (h *History) Get(id types.RunID) (RunSummary, error) {
	var row runRow
	if err := h.queries.Get("get-run", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
		}
		return RunSummary{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return row.summary()
}

// Changes returns the stored selector and override results of a run in
// application order.
func (h *History) Changes(id types.RunID) ([]RunChange, error) {
	if _, err := h.Get(id); err != nil {
		return nil, err
	}
	var changes []RunChange
	if err := h.queries.Select("list-run-changes", &changes, string(id)); err != nil {
		return nil, fmt.Errorf("failed to list changes for run %s: %w", id, err)
	}
	return changes, nil
}
