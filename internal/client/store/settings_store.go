package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetSetting returns a settings value, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SyncStatus is the UI-facing record of the last sync outcome.
type SyncStatus struct {
	LastSuccessTime  *time.Time
	LastErrorTime    *time.Time
	LastErrorMessage *string
	IsPending        bool
}

// GetSyncStatus returns the last recorded sync outcome, or nil when no sync
// has been recorded yet.
func (s *Store) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	var (
		status           SyncStatus
		success, errTime sql.NullString
		isPending        int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_success_time, last_error_time, last_error_message, is_pending
		 FROM sync_status WHERE key = 'lastSync'`).
		Scan(&success, &errTime, &status.LastErrorMessage, &isPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync status: %w", err)
	}

	if success.Valid {
		t, err := time.Parse(time.RFC3339Nano, success.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last success time: %w", err)
		}
		status.LastSuccessTime = &t
	}
	if errTime.Valid {
		t, err := time.Parse(time.RFC3339Nano, errTime.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last error time: %w", err)
		}
		status.LastErrorTime = &t
	}
	status.IsPending = isPending != 0
	return &status, nil
}

// RecordSyncSuccess stamps a successful sync, clearing any previous error.
func (s *Store) RecordSyncSuccess(ctx context.Context, hasPending bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_status (key, last_success_time, last_error_time, last_error_message, is_pending)
		 VALUES ('lastSync', ?, NULL, NULL, ?)
		 ON CONFLICT(key) DO UPDATE SET
			last_success_time = excluded.last_success_time,
			last_error_time = NULL, last_error_message = NULL,
			is_pending = excluded.is_pending`,
		time.Now().UTC().Format(time.RFC3339Nano), boolToInt(hasPending))
	if err != nil {
		return fmt.Errorf("failed to record sync success: %w", err)
	}
	return nil
}

// RecordSyncError stamps a failed sync, preserving the last success time.
func (s *Store) RecordSyncError(ctx context.Context, errMsg string, hasPending bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_status (key, last_error_time, last_error_message, is_pending)
		 VALUES ('lastSync', ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			last_error_time = excluded.last_error_time,
			last_error_message = excluded.last_error_message,
			is_pending = excluded.is_pending`,
		time.Now().UTC().Format(time.RFC3339Nano), errMsg, boolToInt(hasPending))
	if err != nil {
		return fmt.Errorf("failed to record sync error: %w", err)
	}
	return nil
}
