package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daehokim/teambudget/internal/event"
)

const eventColumns = `sequence, event_type, event_date, year, month, author_name, amount,
	store_name, description, receipt_image, ocr_raw_data, reference_sequence,
	created_at, is_local_only, sync_state, pending_id`

// SaveEvents idempotently upserts events keyed by sequence.
func (s *Store) SaveEvents(ctx context.Context, events []event.BudgetEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range events {
			if err := insertEvent(ctx, tx, &events[i]); err != nil {
				return fmt.Errorf("failed to save event %d: %w", events[i].Sequence, err)
			}
		}
		return nil
	})
}

// GetEventsByMonth returns the raw (unfiltered) events of a month ordered by
// sequence ascending. Reset-horizon filtering is the caller's concern.
func (s *Store) GetEventsByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_events WHERE year = ? AND month = ? ORDER BY sequence ASC`, eventColumns)
	return s.queryEvents(ctx, query, year, month)
}

// AllEvents returns the entire local log ordered by sequence ascending.
func (s *Store) AllEvents(ctx context.Context) ([]event.BudgetEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_events ORDER BY sequence ASC`, eventColumns)
	return s.queryEvents(ctx, query)
}

// GetEvent returns a single event by sequence.
func (s *Store) GetEvent(ctx context.Context, sequence int64) (*event.BudgetEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_events WHERE sequence = ?`, eventColumns)
	events, err := s.queryEvents(ctx, query, sequence)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, event.ErrEventNotFound
	}
	return &events[0], nil
}

// GetEventByReference returns the newest event pointing at the given sequence
// through reference_sequence, or nil when none exists.
func (s *Store) GetEventByReference(ctx context.Context, sequence int64) (*event.BudgetEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_events WHERE reference_sequence = ? ORDER BY sequence DESC LIMIT 1`, eventColumns)
	events, err := s.queryEvents(ctx, query, sequence)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// GetResetEvents returns every BUDGET_RESET event in the local log.
func (s *Store) GetResetEvents(ctx context.Context) ([]event.BudgetEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_events WHERE event_type = ? ORDER BY sequence ASC`, eventColumns)
	return s.queryEvents(ctx, query, string(event.TypeBudgetReset))
}

// UpdateSyncState updates the client-side sync indicator of a local event.
func (s *Store) UpdateSyncState(ctx context.Context, sequence int64, state event.SyncState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE budget_events SET sync_state = ? WHERE sequence = ?`, string(state), sequence)
	if err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}
	return nil
}

// DeleteEvent removes an event row by sequence.
func (s *Store) DeleteEvent(ctx context.Context, sequence int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM budget_events WHERE sequence = ?`, sequence)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// LastSequence returns the sync watermark (0 if the client never synced).
func (s *Store) LastSequence(ctx context.Context) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_metadata WHERE key = 'lastSequence'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	return value, nil
}

// SetLastSequence advances the sync watermark and stamps the sync time.
func (s *Store) SetLastSequence(ctx context.Context, sequence int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_metadata (key, value, last_sync_time) VALUES ('lastSequence', ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, last_sync_time = excluded.last_sync_time`,
		sequence, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to set last sequence: %w", err)
	}
	return nil
}

// ClearEvents wipes the event log and the watermark (local-first full reset).
func (s *Store) ClearEvents(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM budget_events`); err != nil {
			return fmt.Errorf("failed to clear events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_metadata`); err != nil {
			return fmt.Errorf("failed to clear sync metadata: %w", err)
		}
		return nil
	})
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *event.BudgetEvent) error {
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO budget_events
		(sequence, event_type, event_date, year, month, author_name, amount,
		 store_name, description, receipt_image, ocr_raw_data, reference_sequence,
		 created_at, is_local_only, sync_state, pending_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Sequence, string(e.EventType), e.EventDate.UTC().Format(time.RFC3339Nano),
		e.Year, e.Month, e.AuthorName, e.Amount,
		e.StoreName, e.Description, e.ReceiptImage, nullableRaw(e.OcrRawData), e.ReferenceSequence,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), boolToInt(e.IsLocalOnly),
		nullableString(string(e.SyncState)), nullableString(e.PendingID),
	)
	return err
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]event.BudgetEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []event.BudgetEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (*event.BudgetEvent, error) {
	var (
		e                    event.BudgetEvent
		eventType            string
		eventDate, createdAt string
		ocrRaw               sql.NullString
		syncState, pendingID sql.NullString
		isLocalOnly          int
	)

	err := rows.Scan(
		&e.Sequence, &eventType, &eventDate, &e.Year, &e.Month, &e.AuthorName, &e.Amount,
		&e.StoreName, &e.Description, &e.ReceiptImage, &ocrRaw, &e.ReferenceSequence,
		&createdAt, &isLocalOnly, &syncState, &pendingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	e.EventType = event.Type(eventType)
	if e.EventDate, err = time.Parse(time.RFC3339Nano, eventDate); err != nil {
		return nil, fmt.Errorf("invalid event date: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created at: %w", err)
	}
	if ocrRaw.Valid {
		e.OcrRawData = json.RawMessage(ocrRaw.String)
	}
	e.IsLocalOnly = isLocalOnly != 0
	if syncState.Valid {
		e.SyncState = event.SyncState(syncState.String)
	}
	if pendingID.Valid {
		e.PendingID = pendingID.String
	}
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
