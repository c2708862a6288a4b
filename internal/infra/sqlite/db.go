// Package sqlite provides persistence for subjects, balances, experience,
// the transaction ledger, the effect queue, and the redeem catalog.
// It uses the pure-Go modernc.org/sqlite driver via database/sql.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle and owns the schema.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent access.
	sqldb.SetMaxOpenConns(1)

	if _, err := sqldb.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{db: sqldb}
	if err := db.migrate(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error { return db.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Subjects: created on first event, deactivated rather than deleted
		`CREATE TABLE IF NOT EXISTS subjects (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			active     INTEGER NOT NULL DEFAULT 1,
			first_seen TEXT NOT NULL,
			last_seen  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subjects_name ON subjects(name)`,

		// One currency balance per subject
		`CREATE TABLE IF NOT EXISTS balances (
			subject_id INTEGER PRIMARY KEY REFERENCES subjects(id),
			balance    INTEGER NOT NULL DEFAULT 0
		)`,

		// Cumulative XP with the derived level cached alongside.
		// total_xp is the source of truth; level is recomputed on mutation.
		`CREATE TABLE IF NOT EXISTS experience (
			subject_id INTEGER PRIMARY KEY REFERENCES subjects(id),
			total_xp   INTEGER NOT NULL DEFAULT 0,
			level      INTEGER NOT NULL DEFAULT 1
		)`,

		// Append-only transaction ledger (currency and experience)
		`CREATE TABLE IF NOT EXISTS transactions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id    INTEGER NOT NULL REFERENCES subjects(id),
			kind          TEXT NOT NULL CHECK(kind IN ('currency','experience')),
			delta         INTEGER NOT NULL,
			reason        TEXT NOT NULL DEFAULT '',
			balance_after INTEGER NOT NULL,
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_subject ON transactions(subject_id, kind)`,

		// Effect queue: forward-only status, FIFO by id within a kind
		`CREATE TABLE IF NOT EXISTS queue_items (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			kind         TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending'
			             CHECK(status IN ('pending','running','done','failed')),
			payload_json TEXT NOT NULL DEFAULT '{}',
			created_at   TEXT NOT NULL,
			started_at   TEXT,
			primed_at    TEXT,
			finished_at  TEXT,
			error        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_kind_status ON queue_items(kind, status, id)`,

		// Redeem catalog
		`CREATE TABLE IF NOT EXISTS redeems (
			key           TEXT PRIMARY KEY,
			display_name  TEXT NOT NULL,
			kind          TEXT NOT NULL DEFAULT 'speech' CHECK (kind IN ('speech', 'draw', 'effect')),
			cost          INTEGER NOT NULL DEFAULT 0,
			cooldown_s    INTEGER NOT NULL DEFAULT 0,
			enabled       INTEGER NOT NULL DEFAULT 1,
			effect_name   TEXT NOT NULL DEFAULT '',
			effect_params TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Time helpers ───────────────────────────────────────────────────────────
// Timestamps are stored as fixed-width UTC text: every value is the same
// length, so SQL string comparisons (the watchdog's started_at cutoff)
// order the same as the instants themselves. RFC3339Nano would trim
// trailing zeros and break that.

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
