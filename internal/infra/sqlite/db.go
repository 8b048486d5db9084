// Package sqlite provides SQLite-based persistent storage for mindcamp.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// FileName is the database file created under the data dir.
const FileName = "mindcamp.db"

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sqlx.DB
}

// Open creates or opens the SQLite database at dir/mindcamp.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, FileName)
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Per-user progress snapshot. Derived fields are owned by the
		// aggregator; grace fields by the grace ledger.
		`CREATE TABLE IF NOT EXISTS progress (
			user_id              TEXT PRIMARY KEY,
			streak_count         INTEGER NOT NULL DEFAULT 0,
			longest_streak       INTEGER NOT NULL DEFAULT 0,
			total_completed_days INTEGER NOT NULL DEFAULT 0,
			current_rank         TEXT NOT NULL DEFAULT 'guest',
			grace_tokens         INTEGER NOT NULL DEFAULT 0 CHECK (grace_tokens BETWEEN 0 AND 2),
			last_grace_reset     INTEGER,
			last_entry_date      TEXT NOT NULL DEFAULT '',
			program_start_date   TEXT NOT NULL DEFAULT ''
		)`,

		// Append-only log of qualifying entries (date + word count only).
		`CREATE TABLE IF NOT EXISTS entries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL,
			day         TEXT NOT NULL,
			word_count  INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user_day ON entries(user_id, day)`,

		// One row per (user, day) with at least one qualifying entry.
		// The primary key is what makes "first entry of the day" atomic.
		`CREATE TABLE IF NOT EXISTS qualifying_days (
			user_id        TEXT NOT NULL,
			day            TEXT NOT NULL,
			first_entry_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, day)
		)`,

		// Grace-covered days. Immutable once inserted.
		`CREATE TABLE IF NOT EXISTS grace_days (
			id         TEXT NOT NULL UNIQUE,
			user_id    TEXT NOT NULL,
			day        TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, day)
		)`,

		// Admin debug tool audit trail.
		`CREATE TABLE IF NOT EXISTS debug_audit_logs (
			id             TEXT PRIMARY KEY,
			action         TEXT NOT NULL,
			actor_user_id  TEXT NOT NULL,
			target_user_id TEXT NOT NULL DEFAULT '',
			ip             TEXT NOT NULL DEFAULT '',
			user_agent     TEXT NOT NULL DEFAULT '',
			method         TEXT NOT NULL,
			path           TEXT NOT NULL,
			metadata       TEXT NOT NULL DEFAULT '{}',
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created ON debug_audit_logs(created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullableUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

// rollback is deferred after BeginTxx; it is a no-op once committed.
func rollback(tx *sqlx.Tx) {
	_ = tx.Rollback()
}
