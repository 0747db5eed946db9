// Package store is the client's durable local state: the mirrored budget
// event log, the pending-event queue, the sync watermark, and cached
// settings. It is backed by an embedded SQLite database so the client works
// fully offline and can promote pending events to server-assigned sequences
// inside real multi-table transactions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register sqlite driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS budget_events (
	sequence           INTEGER PRIMARY KEY,
	event_type         TEXT    NOT NULL,
	event_date         TEXT    NOT NULL,
	year               INTEGER NOT NULL,
	month              INTEGER NOT NULL,
	author_name        TEXT    NOT NULL,
	amount             INTEGER NOT NULL,
	store_name         TEXT,
	description        TEXT,
	receipt_image      BLOB,
	ocr_raw_data       TEXT,
	reference_sequence INTEGER,
	created_at         TEXT    NOT NULL,
	is_local_only      INTEGER NOT NULL DEFAULT 0,
	sync_state         TEXT,
	pending_id         TEXT
);
CREATE INDEX IF NOT EXISTS idx_budget_events_year_month ON budget_events(year, month);
CREATE INDEX IF NOT EXISTS idx_budget_events_type       ON budget_events(event_type);
CREATE INDEX IF NOT EXISTS idx_budget_events_reference  ON budget_events(reference_sequence);

CREATE TABLE IF NOT EXISTS pending_events (
	id                TEXT    PRIMARY KEY,
	temp_sequence     INTEGER NOT NULL,
	payload           TEXT    NOT NULL,
	status            TEXT    NOT NULL,
	retry_count       INTEGER NOT NULL DEFAULT 0,
	last_sync_attempt TEXT,
	last_error        TEXT,
	created_at        TEXT    NOT NULL,
	updated_at        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_events_temp_sequence ON pending_events(temp_sequence);
CREATE INDEX IF NOT EXISTS idx_pending_events_status        ON pending_events(status);
CREATE INDEX IF NOT EXISTS idx_pending_events_created_at    ON pending_events(created_at);

CREATE TABLE IF NOT EXISTS sync_metadata (
	key            TEXT PRIMARY KEY,
	value          INTEGER NOT NULL,
	last_sync_time TEXT
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_status (
	key                TEXT PRIMARY KEY,
	last_success_time  TEXT,
	last_error_time    TEXT,
	last_error_message TEXT,
	is_pending         INTEGER NOT NULL DEFAULT 0
);
`

// Store wraps the client's SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the local database at the given path and ensures the
// schema exists.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating local store dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
