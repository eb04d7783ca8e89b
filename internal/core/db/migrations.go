package db

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/solatis/recordkeeper/migrations"
)

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

// sqliteTimestamp is fixed width so text ordering matches time ordering.
const sqliteTimestamp = "2006-01-02T15:04:05.000000000Z07:00"

// dialect holds the per-driver differences of the migration runner.
type dialect struct {
	fsys        fs.FS
	dir         string
	createTable string
	// timestamp converts a time into the driver's column representation.
	timestamp func(time.Time) any
}

var dialects = map[string]dialect{
	"sqlite3": {
		fsys: embeddedmigrations.SqliteMigrations,
		dir:  "sqlite",
		createTable: `CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_ms INTEGER NOT NULL
		)`,
		timestamp: func(t time.Time) any { return t.UTC().Format(sqliteTimestamp) },
	},
	"postgres": {
		fsys: embeddedmigrations.PostgresMigrations,
		dir:  "postgres",
		createTable: `CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
			execution_ms BIGINT NOT NULL
		)`,
		timestamp: func(t time.Time) any { return t.UTC() },
	},
}

func dialectFor(db *sqlx.DB) (dialect, error) {
	d, ok := dialects[db.DriverName()]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}
	return d, nil
}

// migration represents a parsed migration file.
type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// appliedMigration is one row of the migrations table.
type appliedMigration struct {
	ID          string `db:"migration_id"`
	Checksum    string `db:"checksum"`
	AppliedAt   string `db:"applied_at"`
	ExecutionMs int64  `db:"execution_ms"`
}

// MigrateUp applies every pending migration in filename order, each in its
// own transaction. Already-applied migrations must match their embedded
// checksum.
func MigrateUp(db *sqlx.DB) error {
	d, migrations, applied, err := prepare(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		if err := apply(db, d, m); err != nil {
			return err
		}
	}
	return nil
}

// MigrateStatus returns the status of all migrations (applied and pending).
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	_, migrations, applied, err := prepare(db)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		status := MigrationStatus{ID: m.ID, Checksum: m.Checksum}
		if row, ok := applied[m.ID]; ok {
			status.Applied = true
			status.ExecutionMs = row.ExecutionMs
			if t, err := parseTimestamp(row.AppliedAt); err == nil {
				status.AppliedAt = &t
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// prepare ensures the tracking table, loads embedded migrations and the
// applied rows, and rejects checksum drift.
func prepare(db *sqlx.DB) (dialect, []migration, map[string]appliedMigration, error) {
	d, err := dialectFor(db)
	if err != nil {
		return d, nil, nil, err
	}
	if _, err := db.Exec(d.createTable); err != nil {
		return d, nil, nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := parseMigrationFiles(d.fsys, d.dir)
	if err != nil {
		return d, nil, nil, fmt.Errorf("failed to parse migrations: %w", err)
	}

	var rows []appliedMigration
	if err := db.Select(&rows, "SELECT migration_id, checksum, applied_at, execution_ms FROM migrations"); err != nil {
		return d, nil, nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied := make(map[string]appliedMigration, len(rows))
	for _, r := range rows {
		applied[r.ID] = r
	}

	if err := validateChecksums(migrations, applied); err != nil {
		return d, nil, nil, fmt.Errorf("migration checksum validation failed: %w", err)
	}
	return d, migrations, applied, nil
}

// parseMigrationFiles reads dir/*.sql sorted by filename.
func parseMigrationFiles(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{
			ID:       e.Name(),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
			SQL:      string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})
	return migrations, nil
}

func validateChecksums(migrations []migration, applied map[string]appliedMigration) error {
	embedded := make(map[string]string, len(migrations))
	for _, m := range migrations {
		embedded[m.ID] = m.Checksum
	}
	for id, row := range applied {
		want, ok := embedded[id]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", id)
		}
		if row.Checksum != want {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", id, want, row.Checksum)
		}
	}
	return nil
}

// apply runs one migration and records it in a single transaction.
func apply(db *sqlx.DB, d dialect, m migration) error {
	start := time.Now()

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
	}
	defer tx.Rollback()

	// lib/pq rejects multiple statements in one Exec
	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
		}
	}

	_, err = tx.Exec(
		tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)"),
		m.ID, m.Checksum, d.timestamp(time.Now()), time.Since(start).Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.ID, err)
	}
	return nil
}

// splitStatements drops comment lines and splits on semicolons.
func splitStatements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// parseTimestamp reads a timestamp scanned as text. database/sql formats
// native time values as RFC3339Nano when the destination is a string.
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
