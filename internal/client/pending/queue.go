// Package pending manages the durable queue of locally created events that
// have not yet been acknowledged by the server, including the retry policy
// applied on push.
package pending

import (
	"context"
	"time"

	"github.com/daehokim/teambudget/internal/client/store"
)

const (
	// MaxRetries is the attempt count after which an entry is skipped by
	// automatic pushes and waits for manual intervention.
	MaxRetries = 5

	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
)

// Queue exposes the pending-event queue with its push eligibility rules.
type Queue struct {
	store *store.Store
}

func NewQueue(st *store.Store) *Queue {
	return &Queue{store: st}
}

// All returns every queue entry in push order.
func (q *Queue) All(ctx context.Context) ([]store.PendingEvent, error) {
	return q.store.GetPendingEvents(ctx)
}

// Count returns the queue depth.
func (q *Queue) Count(ctx context.Context) (int, error) {
	return q.store.CountPending(ctx)
}

// MarkSyncing transitions an entry to 'syncing' before a push attempt.
func (q *Queue) MarkSyncing(ctx context.Context, id string) error {
	return q.store.UpdatePendingStatus(ctx, id, store.PendingStatusSyncing, nil)
}

// MarkFailed records a failed push attempt, bumping the retry count.
func (q *Queue) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return q.store.RecordPendingFailure(ctx, id, errMsg)
}

// Requeue returns an in-flight entry to 'pending' without touching its retry
// count, used when a push cycle aborts before the entry was attempted.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	return q.store.UpdatePendingStatus(ctx, id, store.PendingStatusPending, nil)
}

// DemoteStuck returns entries abandoned mid-push to 'pending'.
func (q *Queue) DemoteStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	return q.store.DemoteStuckSyncing(ctx, maxAge)
}

// Clear wipes the queue.
func (q *Queue) Clear(ctx context.Context) error {
	return q.store.ClearPending(ctx)
}

// Backoff returns the wait required before retrying an entry with the given
// failure count: 2s after the first failure, doubling up to a 30s cap.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 10 {
		return maxBackoff
	}
	d := baseBackoff << retryCount
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Eligible reports whether an entry may be pushed now. Entries at or past the
// retry limit are excluded from automatic pushes, and failed entries wait out
// their backoff window.
func Eligible(p *store.PendingEvent, now time.Time) bool {
	if p.RetryCount >= MaxRetries {
		return false
	}
	if p.Status == store.PendingStatusSyncing {
		return false
	}
	if p.LastSyncAttempt != nil {
		if now.Sub(*p.LastSyncAttempt) < Backoff(p.RetryCount) {
			return false
		}
	}
	return true
}
