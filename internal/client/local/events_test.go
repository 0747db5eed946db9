package local_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daehokim/teambudget/internal/client/local"
	"github.com/daehokim/teambudget/internal/client/store"
	"github.com/daehokim/teambudget/internal/event"
)

func newTestService(t *testing.T) (*local.EventService, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return local.NewEventService(st), st
}

func expensePayload(amount int64) event.CreatePayload {
	storeName := "김밥천국"
	return event.CreatePayload{
		EventType:  event.TypeExpense,
		EventDate:  time.Date(2026, 9, 5, 12, 30, 0, 0, time.UTC),
		Year:       2026,
		Month:      9,
		AuthorName: "김대호",
		Amount:     amount,
		StoreName:  &storeName,
	}
}

func synced(seq int64, eventType event.Type, createdAt time.Time) event.BudgetEvent {
	return event.BudgetEvent{
		Sequence:   seq,
		EventType:  eventType,
		EventDate:  createdAt,
		Year:       2026,
		Month:      9,
		AuthorName: "김대호",
		Amount:     10000,
		CreatedAt:  createdAt,
	}
}

func TestCreateLocalEvent_AssignsDecreasingTempSequences(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateLocalEvent(ctx, expensePayload(5000))
	require.NoError(t, err)
	second, err := svc.CreateLocalEvent(ctx, expensePayload(7000))
	require.NoError(t, err)

	assert.Negative(t, first.Sequence)
	assert.Less(t, second.Sequence, first.Sequence)
	assert.True(t, first.IsLocalOnly)
	assert.Equal(t, event.SyncStatePending, first.SyncState)
	assert.NotEmpty(t, first.PendingID)
}

func TestCreateLocalEvent_RejectsInvalidPayload(t *testing.T) {
	svc, _ := newTestService(t)

	payload := expensePayload(5000)
	payload.Amount = -1
	_, err := svc.CreateLocalEvent(context.Background(), payload)
	assert.ErrorIs(t, err, event.ErrNegativeAmount)

	payload = expensePayload(5000)
	payload.Month = 13
	_, err = svc.CreateLocalEvent(context.Background(), payload)
	assert.ErrorIs(t, err, event.ErrInvalidMonth)
}

func TestGetEventsByMonth_NoReset_ReturnsEverything(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{
		synced(1, event.TypeBudgetIn, now.Add(-2*time.Hour)),
		synced(2, event.TypeExpense, now.Add(-time.Hour)),
	}))

	events, err := svc.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestGetEventsByMonth_ResetHidesOlderEvents(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{
		synced(1, event.TypeBudgetIn, base),
		synced(2, event.TypeExpense, base.Add(time.Hour)),
		synced(3, event.TypeBudgetReset, base.Add(2*time.Hour)),
		synced(4, event.TypeBudgetIn, base.Add(3*time.Hour)),
	}))

	events, err := svc.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4), events[0].Sequence)
}

func TestGetEventsByMonth_LocalEventsAfterResetSurvive(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{
		synced(5, event.TypeBudgetReset, base),
	}))

	// Created after the reset: survives despite its negative sequence.
	localEvent := synced(-50, event.TypeExpense, base.Add(time.Minute))
	localEvent.IsLocalOnly = true
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{localEvent}))

	// Created before the reset with a negative sequence: hidden.
	stale := synced(-60, event.TypeExpense, base.Add(-time.Minute))
	stale.IsLocalOnly = true
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{stale}))

	events, err := svc.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(-50), events[0].Sequence)
}

func TestGetEventsByMonth_LatestResetWins(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{
		synced(1, event.TypeBudgetReset, base),
		synced(2, event.TypeExpense, base.Add(time.Hour)),
		synced(3, event.TypeBudgetReset, base.Add(2*time.Hour)),
		synced(4, event.TypeExpense, base.Add(3*time.Hour)),
	}))

	events, err := svc.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4), events[0].Sequence)
}

func TestActiveExpenses_ExcludesReversed(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	ref := int64(2)
	reversal := synced(3, event.TypeExpenseReversal, base.Add(2*time.Hour))
	reversal.ReferenceSequence = &ref

	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{
		synced(1, event.TypeExpense, base),
		synced(2, event.TypeExpense, base.Add(time.Hour)),
		reversal,
	}))

	expenses, err := svc.ActiveExpensesByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, int64(1), expenses[0].Sequence)
}

func TestReverseExpense(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{
		synced(1, event.TypeExpense, base),
	}))

	reversal, err := svc.ReverseExpense(ctx, 1, "이수진")
	require.NoError(t, err)
	assert.Equal(t, event.TypeExpenseReversal, reversal.EventType)
	require.NotNil(t, reversal.ReferenceSequence)
	assert.Equal(t, int64(1), *reversal.ReferenceSequence)
	assert.Equal(t, int64(10000), reversal.Amount)

	// Second reversal of the same expense is rejected.
	_, err = svc.ReverseExpense(ctx, 1, "이수진")
	assert.ErrorIs(t, err, event.ErrAlreadyReversed)
}

func TestReverseExpense_OnlyExpenses(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, st.SaveEvents(ctx, []event.BudgetEvent{
		synced(1, event.TypeBudgetIn, time.Now().UTC()),
	}))

	_, err := svc.ReverseExpense(ctx, 1, "이수진")
	assert.ErrorIs(t, err, event.ErrNotAnExpense)

	_, err = svc.ReverseExpense(ctx, 99, "이수진")
	assert.ErrorIs(t, err, event.ErrEventNotFound)
}

func TestWatermark(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	last, err := svc.GetLatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	require.NoError(t, svc.UpdateLastSequence(ctx, 42))
	last, err = svc.GetLatestSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), last)
}
