package pending_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daehokim/teambudget/internal/client/pending"
	"github.com/daehokim/teambudget/internal/client/store"
)

func TestBackoff_DoublesUpToCap(t *testing.T) {
	assert.Equal(t, time.Second, pending.Backoff(0))
	assert.Equal(t, 2*time.Second, pending.Backoff(1))
	assert.Equal(t, 4*time.Second, pending.Backoff(2))
	assert.Equal(t, 8*time.Second, pending.Backoff(3))
	assert.Equal(t, 16*time.Second, pending.Backoff(4))
	assert.Equal(t, 30*time.Second, pending.Backoff(5))
	assert.Equal(t, 30*time.Second, pending.Backoff(20))
	assert.Equal(t, time.Second, pending.Backoff(-1))
}

func TestEligible(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fresh entry is eligible", func(t *testing.T) {
		p := &store.PendingEvent{Status: store.PendingStatusPending}
		assert.True(t, pending.Eligible(p, now))
	})

	t.Run("entry at retry limit is excluded", func(t *testing.T) {
		p := &store.PendingEvent{Status: store.PendingStatusFailed, RetryCount: pending.MaxRetries}
		assert.False(t, pending.Eligible(p, now))
	})

	t.Run("in-flight entry is excluded", func(t *testing.T) {
		p := &store.PendingEvent{Status: store.PendingStatusSyncing}
		assert.False(t, pending.Eligible(p, now))
	})

	t.Run("failed entry waits out its backoff", func(t *testing.T) {
		attempt := now.Add(-time.Second)
		p := &store.PendingEvent{
			Status:          store.PendingStatusFailed,
			RetryCount:      2,
			LastSyncAttempt: &attempt,
		}
		// 2 retries require a 4s wait; only 1s has passed.
		assert.False(t, pending.Eligible(p, now))

		later := now.Add(5 * time.Second)
		assert.True(t, pending.Eligible(p, later))
	})
}
