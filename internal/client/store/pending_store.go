package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daehokim/teambudget/internal/event"
)

// PendingStatus is the queue lifecycle state of a not-yet-acknowledged event.
type PendingStatus string

const (
	PendingStatusPending PendingStatus = "pending"
	PendingStatusSyncing PendingStatus = "syncing"
	PendingStatusFailed  PendingStatus = "failed"
)

// PendingEvent is a durable record of a locally created event awaiting
// successful transmission to the server. Synced entries are deleted, not
// transitioned.
type PendingEvent struct {
	ID              string
	TempSequence    int64
	Payload         event.CreatePayload
	Status          PendingStatus
	RetryCount      int
	LastSyncAttempt *time.Time
	LastError       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const pendingColumns = `id, temp_sequence, payload, status, retry_count, last_sync_attempt, last_error, created_at, updated_at`

// PutPending inserts a pending queue entry.
func (s *Store) PutPending(ctx context.Context, p *PendingEvent) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO pending_events
		(id, temp_sequence, payload, status, retry_count, last_sync_attempt, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TempSequence, string(payload), string(p.Status), p.RetryCount,
		formatNullableTime(p.LastSyncAttempt), p.LastError,
		p.CreatedAt.UTC().Format(time.RFC3339Nano), p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending event: %w", err)
	}
	return nil
}

// GetPendingEvents returns the whole queue in push order: creation time
// ascending, temp sequence magnitude ascending, id as the final tie-break.
// Magnitude grows with queue position in both sequence regimes: fresh local
// entries take ever more negative temps, renumbered entries take ascending
// positive ones.
func (s *Store) GetPendingEvents(ctx context.Context) ([]PendingEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM pending_events
		ORDER BY created_at ASC,
			CASE WHEN temp_sequence < 0 THEN -temp_sequence ELSE temp_sequence END ASC,
			id ASC`, pendingColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pending []PendingEvent
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *p)
	}
	return pending, rows.Err()
}

// UpdatePendingStatus transitions an entry's state and stamps updated_at.
// A non-nil lastError records the failure reason.
func (s *Store) UpdatePendingStatus(ctx context.Context, id string, status PendingStatus, lastError *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_events SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), lastError, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update pending status: %w", err)
	}
	return nil
}

// RecordPendingFailure marks a failed push attempt: status failed, retry
// count incremented, attempt time stamped.
func (s *Store) RecordPendingFailure(ctx context.Context, id string, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_events
		 SET status = ?, last_error = ?, retry_count = retry_count + 1, last_sync_attempt = ?, updated_at = ?
		 WHERE id = ?`,
		string(PendingStatusFailed), errMsg, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to record pending failure: %w", err)
	}
	return nil
}

// RemovePending deletes a queue entry.
func (s *Store) RemovePending(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove pending event: %w", err)
	}
	return nil
}

// CountPending returns the queue depth.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return count, nil
}

// ClearPending wipes the queue.
func (s *Store) ClearPending(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_events`)
	if err != nil {
		return fmt.Errorf("failed to clear pending events: %w", err)
	}
	return nil
}

// DemoteStuckSyncing resets entries left in 'syncing' longer than maxAge back
// to 'pending'. Run at engine startup so a crash mid-push never wedges the
// queue.
func (s *Store) DemoteStuckSyncing(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_events SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(PendingStatusPending), time.Now().UTC().Format(time.RFC3339Nano),
		string(PendingStatusSyncing), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to demote stuck entries: %w", err)
	}
	return res.RowsAffected()
}

func scanPending(rows *sql.Rows) (*PendingEvent, error) {
	var (
		p                    PendingEvent
		payload              string
		status               string
		lastAttempt          sql.NullString
		createdAt, updatedAt string
	)

	err := rows.Scan(&p.ID, &p.TempSequence, &payload, &status, &p.RetryCount,
		&lastAttempt, &p.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending event: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	p.Status = PendingStatus(status)
	if lastAttempt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAttempt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last sync attempt: %w", err)
		}
		p.LastSyncAttempt = &t
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated at: %w", err)
	}
	return &p, nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
