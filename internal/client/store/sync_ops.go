package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daehokim/teambudget/internal/event"
)

// CreateLocalEvent atomically records a locally originated event: the queue
// entry and its shadow event row land in one transaction, so readers never
// observe one without the other. Returns the shadow event.
func (s *Store) CreateLocalEvent(ctx context.Context, p *PendingEvent) (*event.BudgetEvent, error) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	shadow := shadowEvent(p, p.TempSequence)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO pending_events
			(id, temp_sequence, payload, status, retry_count, last_sync_attempt, last_error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.TempSequence, string(payload), string(p.Status), p.RetryCount,
			formatNullableTime(p.LastSyncAttempt), p.LastError,
			p.CreatedAt.UTC().Format(time.RFC3339Nano), p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue pending event: %w", err)
		}
		if err := insertEvent(ctx, tx, shadow); err != nil {
			return fmt.Errorf("failed to insert local event %d: %w", shadow.Sequence, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shadow, nil
}

// PromotePending atomically swaps a temp-sequence event for its
// server-acknowledged version and removes the queue entry. A concurrent
// reader sees either the temp event or the confirmed one, never both and
// never neither.
func (s *Store) PromotePending(ctx context.Context, pendingID string, tempSequence int64, confirmed *event.BudgetEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM budget_events WHERE sequence = ? AND is_local_only = 1`, tempSequence); err != nil {
			return fmt.Errorf("failed to delete temp event %d: %w", tempSequence, err)
		}
		if err := insertEvent(ctx, tx, confirmed); err != nil {
			return fmt.Errorf("failed to insert confirmed event %d: %w", confirmed.Sequence, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_events WHERE id = ?`, pendingID); err != nil {
			return fmt.Errorf("failed to dequeue pending %s: %w", pendingID, err)
		}
		return nil
	})
}

// RenumberPending atomically moves a surviving pending event to a fresh temp
// sequence positioned after all known server events. The shadow event row is
// rebuilt from the queued payload, so renumbering also restores shadows that
// a reset wipe removed. The delete only touches local-only rows: a renumbered
// temp sequence can collide with a sequence the server assigned later, and
// that server event must survive the move.
func (s *Store) RenumberPending(ctx context.Context, p *PendingEvent, newSequence int64) error {
	shadow := shadowEvent(p, newSequence)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM budget_events WHERE sequence = ? AND is_local_only = 1`, p.TempSequence); err != nil {
			return fmt.Errorf("failed to delete old temp event %d: %w", p.TempSequence, err)
		}
		if err := insertEvent(ctx, tx, shadow); err != nil {
			return fmt.Errorf("failed to insert renumbered event %d: %w", newSequence, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE pending_events SET temp_sequence = ?, updated_at = ? WHERE id = ?`,
			newSequence, time.Now().UTC().Format(time.RFC3339Nano), p.ID); err != nil {
			return fmt.Errorf("failed to update pending temp sequence: %w", err)
		}
		return nil
	})
}

// DropPending atomically abandons a queue entry and its shadow event (used
// when a pulled reset invalidates causally-earlier pending writes).
func (s *Store) DropPending(ctx context.Context, pendingID string, tempSequence int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM budget_events WHERE sequence = ? AND is_local_only = 1`, tempSequence); err != nil {
			return fmt.Errorf("failed to delete shadow event %d: %w", tempSequence, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_events WHERE id = ?`, pendingID); err != nil {
			return fmt.Errorf("failed to delete pending %s: %w", pendingID, err)
		}
		return nil
	})
}

// ResetLocalState wipes the event log, settings, and watermark in one
// transaction. Used when a pulled BUDGET_RESET declares pre-reset server
// history non-authoritative; the pending queue is filtered separately.
func (s *Store) ResetLocalState(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"budget_events", "settings", "sync_metadata"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func shadowEvent(p *PendingEvent, sequence int64) *event.BudgetEvent {
	return &event.BudgetEvent{
		Sequence:          sequence,
		EventType:         p.Payload.EventType,
		EventDate:         p.Payload.EventDate,
		Year:              p.Payload.Year,
		Month:             p.Payload.Month,
		AuthorName:        p.Payload.AuthorName,
		Amount:            p.Payload.Amount,
		StoreName:         p.Payload.StoreName,
		Description:       p.Payload.Description,
		ReceiptImage:      p.Payload.ReceiptImage,
		OcrRawData:        p.Payload.OcrRawData,
		ReferenceSequence: p.Payload.ReferenceSequence,
		CreatedAt:         p.CreatedAt,
		IsLocalOnly:       true,
		SyncState:         event.SyncStatePending,
		PendingID:         p.ID,
	}
}
