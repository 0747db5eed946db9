package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daehokim/teambudget/internal/client/store"
	"github.com/daehokim/teambudget/internal/event"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func serverEvent(seq int64, eventType event.Type, year, month int, amount int64) event.BudgetEvent {
	return event.BudgetEvent{
		Sequence:   seq,
		EventType:  eventType,
		EventDate:  time.Date(year, time.Month(month), 10, 0, 0, 0, 0, time.UTC),
		Year:       year,
		Month:      month,
		AuthorName: "김대호",
		Amount:     amount,
		CreatedAt:  time.Now().UTC(),
	}
}

func pendingEntry(tempSeq int64, createdAt time.Time) *store.PendingEvent {
	return &store.PendingEvent{
		ID:           uuid.NewString(),
		TempSequence: tempSeq,
		Payload: event.CreatePayload{
			EventType:  event.TypeExpense,
			EventDate:  createdAt,
			Year:       createdAt.Year(),
			Month:      int(createdAt.Month()),
			AuthorName: "김대호",
			Amount:     10000,
		},
		Status:    store.PendingStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestSaveEvents_UpsertIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	e := serverEvent(1, event.TypeBudgetIn, 2026, 9, 500000)
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{e}))

	e.Amount = 600000
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{e}))

	events, err := st.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(600000), events[0].Amount)
}

func TestGetEventsByMonth_OrdersBySequence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{
		serverEvent(3, event.TypeExpense, 2026, 9, 30000),
		serverEvent(1, event.TypeBudgetIn, 2026, 9, 500000),
		serverEvent(2, event.TypeExpense, 2026, 9, 20000),
	}))

	events, err := st.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].Sequence)
	assert.Equal(t, int64(2), events[1].Sequence)
	assert.Equal(t, int64(3), events[2].Sequence)
}

func TestGetEvent_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetEvent(context.Background(), 42)
	assert.ErrorIs(t, err, event.ErrEventNotFound)
}

func TestCreateLocalEvent_WritesShadowAndQueueTogether(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	created, err := st.CreateLocalEvent(ctx, pendingEntry(-100, now))
	require.NoError(t, err)

	assert.Equal(t, int64(-100), created.Sequence)
	assert.True(t, created.IsLocalOnly)
	assert.Equal(t, event.SyncStatePending, created.SyncState)

	events, err := st.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 1)

	count, err := st.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetPendingEvents_PushOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	second := pendingEntry(-2, base.Add(time.Minute))
	first := pendingEntry(-1, base)
	require.NoError(t, st.PutPending(ctx, second))
	require.NoError(t, st.PutPending(ctx, first))

	pending, err := st.GetPendingEvents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestPromotePending_SwapsTempForConfirmed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	p := pendingEntry(-5, now)
	_, err := st.CreateLocalEvent(ctx, p)
	require.NoError(t, err)

	confirmed := serverEvent(7, event.TypeExpense, 2026, 9, 10000)
	confirmed.SyncState = event.SyncStateSynced
	require.NoError(t, st.PromotePending(ctx, p.ID, p.TempSequence, &confirmed))

	events, err := st.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(7), events[0].Sequence)

	count, err := st.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRenumberPending_RebuildsShadowRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)
	p := pendingEntry(-9, now)
	_, err := st.CreateLocalEvent(ctx, p)
	require.NoError(t, err)

	// Simulate a reset wipe that removed the shadow row.
	require.NoError(t, st.ResetLocalState(ctx))

	require.NoError(t, st.RenumberPending(ctx, p, 11))

	events, err := st.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].Sequence)
	assert.True(t, events[0].IsLocalOnly)

	pending, err := st.GetPendingEvents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(11), pending[0].TempSequence)
}

func TestRenumberPending_PreservesServerRowAtOldSequence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// A pulled server event has taken over the sequence the shadow used to
	// occupy. Renumbering must move the shadow without touching the server row.
	server := serverEvent(5, event.TypeExpense, 2026, 9, 70000)
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{server}))

	p := pendingEntry(5, time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC))
	require.NoError(t, st.PutPending(ctx, p))

	require.NoError(t, st.RenumberPending(ctx, p, 6))

	events, err := st.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(5), events[0].Sequence)
	assert.False(t, events[0].IsLocalOnly)
	assert.Equal(t, int64(70000), events[0].Amount)
	assert.Equal(t, int64(6), events[1].Sequence)
	assert.True(t, events[1].IsLocalOnly)
}

func TestGetPendingEvents_OrderAfterRenumbering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Renumbered entries carry ascending positive temps; a same-instant fresh
	// entry carries a large negative one and queues after them.
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	second := pendingEntry(102, base)
	first := pendingEntry(101, base)
	fresh := pendingEntry(-1764000000000000000, base)
	require.NoError(t, st.PutPending(ctx, fresh))
	require.NoError(t, st.PutPending(ctx, second))
	require.NoError(t, st.PutPending(ctx, first))

	pending, err := st.GetPendingEvents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, fresh.ID, pending[2].ID)
}

func TestDropPending_RemovesShadowAndEntry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p := pendingEntry(-3, time.Date(2026, 9, 4, 8, 0, 0, 0, time.UTC))
	_, err := st.CreateLocalEvent(ctx, p)
	require.NoError(t, err)

	require.NoError(t, st.DropPending(ctx, p.ID, p.TempSequence))

	events, err := st.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	assert.Empty(t, events)

	count, err := st.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestResetLocalState_PreservesPendingQueue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{serverEvent(1, event.TypeBudgetIn, 2026, 9, 500000)}))
	require.NoError(t, st.SetLastSequence(ctx, 1))
	require.NoError(t, st.SetSetting(ctx, "defaultMonthlyBudget", "500000"))
	p := pendingEntry(-1, time.Now().UTC())
	require.NoError(t, st.PutPending(ctx, p))

	require.NoError(t, st.ResetLocalState(ctx))

	events, err := st.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	assert.Empty(t, events)

	last, err := st.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	value, err := st.GetSetting(ctx, "defaultMonthlyBudget")
	require.NoError(t, err)
	assert.Empty(t, value)

	count, err := st.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordPendingFailure_BumpsRetryCount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p := pendingEntry(-1, time.Now().UTC())
	require.NoError(t, st.PutPending(ctx, p))

	require.NoError(t, st.RecordPendingFailure(ctx, p.ID, "connection refused"))
	require.NoError(t, st.RecordPendingFailure(ctx, p.ID, "connection refused"))

	pending, err := st.GetPendingEvents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	assert.Equal(t, store.PendingStatusFailed, pending[0].Status)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "connection refused", *pending[0].LastError)
	assert.NotNil(t, pending[0].LastSyncAttempt)
}

func TestDemoteStuckSyncing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old := pendingEntry(-1, time.Now().UTC().Add(-time.Hour))
	old.Status = store.PendingStatusSyncing
	old.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, st.PutPending(ctx, old))

	fresh := pendingEntry(-2, time.Now().UTC())
	fresh.Status = store.PendingStatusSyncing
	require.NoError(t, st.PutPending(ctx, fresh))

	demoted, err := st.DemoteStuckSyncing(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), demoted)

	pending, err := st.GetPendingEvents(ctx)
	require.NoError(t, err)
	byID := map[string]store.PendingEvent{}
	for _, p := range pending {
		byID[p.ID] = p
	}
	assert.Equal(t, store.PendingStatusPending, byID[old.ID].Status)
	assert.Equal(t, store.PendingStatusSyncing, byID[fresh.ID].Status)
}

func TestSyncStatus_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	status, err := st.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status)

	require.NoError(t, st.RecordSyncError(ctx, "server unreachable", true))
	status, err = st.GetSyncStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Nil(t, status.LastSuccessTime)
	require.NotNil(t, status.LastErrorMessage)
	assert.Equal(t, "server unreachable", *status.LastErrorMessage)
	assert.True(t, status.IsPending)

	require.NoError(t, st.RecordSyncSuccess(ctx, false))
	status, err = st.GetSyncStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.NotNil(t, status.LastSuccessTime)
	assert.Nil(t, status.LastErrorTime)
	assert.Nil(t, status.LastErrorMessage)
	assert.False(t, status.IsPending)
}

func TestLastSequence_DefaultsToZero(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	last, err := st.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	require.NoError(t, st.SetLastSequence(ctx, 17))
	last, err = st.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(17), last)
}
