package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// timeLayout sorts lexically, so range queries can compare the TEXT columns directly.
const timeLayout = "2006-01-02 15:04:05.000"

// Store is the bot's SQLite database: cleaning sessions, points, pantry,
// expenses, budgets, bills, dialog state, chat history and reminders.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite parent dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY under
	// concurrent chat updates.
	db.SetMaxOpenConns(1)

	s := &Store{DB: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		"PRAGMA foreign_keys = ON;",
		`CREATE TABLE IF NOT EXISTS cleaning_sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			zones TEXT NOT NULL,
			flow TEXT NOT NULL,
			phase_index INTEGER NOT NULL,
			task_index INTEGER NOT NULL,
			status TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			nudged_at TEXT
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS cleaning_sessions_one_open
			ON cleaning_sessions(owner_id) WHERE status IN ('active', 'paused');`,
		`CREATE TABLE IF NOT EXISTS owners (
			owner_id TEXT PRIMARY KEY,
			points_total INTEGER NOT NULL DEFAULT 0,
			points_month INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS points_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			points INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			local_date TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pantry_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			amount REAL NOT NULL DEFAULT 0,
			unit TEXT NOT NULL DEFAULT 'pcs',
			category TEXT NOT NULL DEFAULT '',
			low_threshold REAL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			amount REAL NOT NULL,
			category TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS dialog_state (
			owner_id TEXT PRIMARY KEY,
			expect TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			description TEXT NOT NULL,
			interval_seconds INTEGER NOT NULL,
			next_run TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
		);`,
		`CREATE TABLE IF NOT EXISTS budgets (
			owner_id TEXT PRIMARY KEY,
			monthly_limit REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS budget_categories (
			owner_id TEXT NOT NULL,
			category TEXT NOT NULL,
			limit_amount REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (owner_id, category)
		);`,
		`CREATE TABLE IF NOT EXISTS bills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			amount REAL NOT NULL,
			day_of_month INTEGER NOT NULL,
			last_paid_month TEXT NOT NULL DEFAULT '',
			reminded_month TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE (owner_id, title)
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, statement := range statements {
		if _, err := s.DB.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("migrate sqlite schema: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return t, nil
}
