// Package sqlite provides SQLite-based persistent storage for the award daemon:
// actor statistics, award progress, tier multipliers and the notification
// outbox. Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DefaultHistoryDays is how much daily activity a snapshot carries.
const DefaultHistoryDays = 120

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db          *sql.DB
	historyDays int
}

// Open creates or opens the SQLite database at dir/awards.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "awards.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db, historyDays: DefaultHistoryDays}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// SetHistoryDays bounds the daily history loaded into each snapshot.
func (d *DB) SetHistoryDays(n int) {
	if n > 0 {
		d.historyDays = n
	}
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
		// ─── Actor statistics (written by the host, read by snapshots) ───
		`CREATE TABLE IF NOT EXISTS actors (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL DEFAULT '',
			timezone             TEXT NOT NULL DEFAULT 'UTC',
			cycle_key            TEXT NOT NULL DEFAULT '',
			balance              REAL NOT NULL DEFAULT 0,
			lifetime_earned      REAL NOT NULL DEFAULT 0,
			lifetime_task_earned REAL NOT NULL DEFAULT 0,
			cycle_earned         REAL NOT NULL DEFAULT 0,
			cycle_task_earned    REAL NOT NULL DEFAULT 0,
			reward_claims        INTEGER NOT NULL DEFAULT 0,
			bonus_count          INTEGER NOT NULL DEFAULT 0,
			current_streak       INTEGER NOT NULL DEFAULT 0,
			longest_streak       INTEGER NOT NULL DEFAULT 0,
			updated_at           INTEGER NOT NULL
		)`,

		// Per task type counters; today is read from daily_chore_counts.
		`CREATE TABLE IF NOT EXISTS chore_counts (
			actor_id  TEXT NOT NULL,
			task_type TEXT NOT NULL,
			cycle     INTEGER NOT NULL DEFAULT 0,
			all_time  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (actor_id, task_type)
		)`,

		// One row per actor per calendar day (YYYY-MM-DD, actor timezone).
		`CREATE TABLE IF NOT EXISTS daily_activity (
			actor_id      TEXT NOT NULL,
			day           TEXT NOT NULL,
			applicable    INTEGER NOT NULL DEFAULT 0,
			due_today     INTEGER NOT NULL DEFAULT 0,
			completed     INTEGER NOT NULL DEFAULT 0,
			completed_due INTEGER NOT NULL DEFAULT 0,
			overdue       INTEGER NOT NULL DEFAULT 0,
			points        REAL NOT NULL DEFAULT 0,
			task_points   REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (actor_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_chore_counts (
			actor_id  TEXT NOT NULL,
			day       TEXT NOT NULL,
			task_type TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (actor_id, day, task_type)
		)`,

		// ─── Award state (written only through applied verdicts) ─────────
		`CREATE TABLE IF NOT EXISTS award_progress (
			actor_id     TEXT NOT NULL,
			award_id     TEXT NOT NULL,
			tier         INTEGER NOT NULL DEFAULT 0,
			state        TEXT NOT NULL DEFAULT '',
			window_start INTEGER,
			window_end   INTEGER,
			earned       BOOLEAN NOT NULL DEFAULT 0,
			earned_at    INTEGER,
			cycle_key    TEXT NOT NULL DEFAULT '',
			earn_count   INTEGER NOT NULL DEFAULT 0,
			terminal     BOOLEAN NOT NULL DEFAULT 0,
			progress     REAL NOT NULL DEFAULT 0,
			updated_at   INTEGER NOT NULL,
			PRIMARY KEY (actor_id, award_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_award ON award_progress(award_id)`,

		`CREATE TABLE IF NOT EXISTS award_multipliers (
			actor_id   TEXT NOT NULL,
			award_id   TEXT NOT NULL,
			multiplier REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (actor_id, award_id)
		)`,

		// Notification outbox; dedupe_key makes Emit safe to retry.
		`CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			dedupe_key TEXT NOT NULL UNIQUE,
			actor_id   TEXT NOT NULL,
			award_id   TEXT NOT NULL,
			award_name TEXT NOT NULL DEFAULT '',
			class      TEXT NOT NULL,
			reason     TEXT NOT NULL,
			tier       INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			shown      BOOLEAN DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_actor ON notifications(actor_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Timestamps are stored as Unix nanoseconds so a record read back compares
// equal to the one written.
func nullableUnixNano(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromUnixNano(n sql.NullInt64, loc *time.Location) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).In(loc)
}
