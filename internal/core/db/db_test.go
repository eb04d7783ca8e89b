package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/recordkeeper/internal/engine"
	"github.com/solatis/recordkeeper/internal/types"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		driver     string
		dataSource string
		wantErr    bool
	}{
		{"sqlite://history.db", "sqlite3", "history.db?_foreign_keys=on", false},
		{"sqlite://data/history.db", "sqlite3", "data/history.db?_foreign_keys=on", false},
		{"sqlite:///var/lib/rk.db", "sqlite3", "/var/lib/rk.db?_foreign_keys=on", false},
		{"postgres://u:p@localhost/rk", "postgres", "postgres://u:p@localhost/rk", false},
		{"postgresql://localhost/rk", "postgres", "postgresql://localhost/rk", false},
		{"sqlite://", "", "", true},
		{"mysql://localhost/rk", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, ds, err := parseURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseURL(%q) error = nil, want error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseURL(%q) error = %v, want nil", tt.url, err)
			}
			if driver != tt.driver || ds != tt.dataSource {
				t.Errorf("parseURL(%q) = (%q, %q), want (%q, %q)", tt.url, driver, ds, tt.driver, tt.dataSource)
			}
		})
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Fatalf("second MigrateUp() error = %v, want nil", err)
	}

	statuses, err := MigrateStatus(db)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v, want nil", err)
	}
	if len(statuses) == 0 {
		t.Fatal("MigrateStatus() returned no migrations")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied", s.ID)
		}
		if s.AppliedAt == nil {
			t.Errorf("migration %s has no applied_at", s.ID)
		}
	}
}

func TestMigrateStatus_Pending(t *testing.T) {
	db := openTestDB(t)

	statuses, err := MigrateStatus(db)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v, want nil", err)
	}
	for _, s := range statuses {
		if s.Applied {
			t.Errorf("migration %s reported applied before MigrateUp", s.ID)
		}
		if s.Checksum == "" {
			t.Errorf("migration %s has no checksum", s.ID)
		}
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	if _, err := db.Exec("UPDATE migrations SET checksum = 'tampered'"); err != nil {
		t.Fatal(err)
	}

	if err := MigrateUp(db); err == nil {
		t.Fatal("MigrateUp() error = nil, want checksum mismatch")
	}
}

func TestSplitStatements(t *testing.T) {
	sql := "-- comment; with semicolon\nCREATE TABLE a (x INT);\n\n-- another\nCREATE TABLE b (y INT)\n"
	got := splitStatements(sql)
	if len(got) != 2 {
		t.Fatalf("splitStatements() = %q, want 2 statements", got)
	}
	if got[0] != "CREATE TABLE a (x INT)" {
		t.Errorf("first statement = %q", got[0])
	}
}

func testReport(id types.RunID, started time.Time) *engine.Report {
	return &engine.Report{
		RunID:       id,
		Fingerprint: "abc123",
		StartedAt:   started,
		Duration:    1500 * time.Millisecond,
		Selectors: []engine.SelectorResult{
			{Name: "double swords", Matched: 2, Affected: 2, Changes: 2, Records: 2},
			{Name: "broken", Matched: 0},
		},
		Overrides: []engine.OverrideResult{
			{Name: "Long Sword", RecordID: "w2", Changes: 1},
		},
		Invalid:      []string{"broken"},
		TotalChanges: 3,
		TotalRecords: 3,
	}
}

func TestHistory_SaveListChanges(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	h, err := NewHistory(db)
	if err != nil {
		t.Fatalf("NewHistory() error = %v, want nil", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first, second := types.NewRunID(), types.NewRunID()
	if err := h.Save(testReport(first, base)); err != nil {
		t.Fatalf("Save() error = %v, want nil", err)
	}
	if err := h.Save(testReport(second, base.Add(500*time.Millisecond))); err != nil {
		t.Fatalf("Save() error = %v, want nil", err)
	}

	runs, err := h.List(10)
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	if len(runs) != 2 {
		t.Fatalf("List() returned %d runs, want 2", len(runs))
	}
	if runs[0].RunID != second {
		t.Errorf("List()[0] = %s, want most recent %s", runs[0].RunID, second)
	}
	if runs[1].TotalChanges != 3 || runs[1].Invalid != 1 || runs[1].Duration != 1500*time.Millisecond {
		t.Errorf("List()[1] = %+v", runs[1])
	}
	if !runs[1].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", runs[1].StartedAt, base)
	}

	limited, err := h.List(1)
	if err != nil {
		t.Fatalf("List(1) error = %v, want nil", err)
	}
	if len(limited) != 1 {
		t.Errorf("List(1) returned %d runs", len(limited))
	}

	changes, err := h.Changes(first)
	if err != nil {
		t.Fatalf("Changes() error = %v, want nil", err)
	}
	if len(changes) != 3 {
		t.Fatalf("Changes() returned %d rows, want 3", len(changes))
	}
	if changes[0].Kind != KindSelector || changes[0].Name != "double swords" || changes[0].Changes != 2 {
		t.Errorf("Changes()[0] = %+v", changes[0])
	}
	if changes[2].Kind != KindOverride || changes[2].RecordID != "w2" {
		t.Errorf("Changes()[2] = %+v", changes[2])
	}
}

func TestHistory_UnknownRun(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	h, err := NewHistory(db)
	if err != nil {
		t.Fatalf("NewHistory() error = %v, want nil", err)
	}

	_, err = h.Changes(types.NewRunID())
	if !errors.Is(err, types.ErrRunNotFound) {
		t.Fatalf("Changes() error = %v, want ErrRunNotFound", err)
	}
}

func TestHistory_DuplicateRunRejected(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	h, err := NewHistory(db)
	if err != nil {
		t.Fatalf("NewHistory() error = %v, want nil", err)
	}

	report := testReport(types.NewRunID(), time.Now())
	if err := h.Save(report); err != nil {
		t.Fatalf("Save() error = %v, want nil", err)
	}
	if err := h.Save(report); err == nil {
		t.Fatal("second Save() error = nil, want primary key violation")
	}

	changes, err := h.Changes(report.RunID)
	if err != nil {
		t.Fatalf("Changes() error = %v, want nil", err)
	}
	if len(changes) != 3 {
		t.Errorf("failed Save left %d change rows, want 3", len(changes))
	}
}
