package budget_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daehokim/teambudget/internal/client/budget"
	"github.com/daehokim/teambudget/internal/client/local"
	"github.com/daehokim/teambudget/internal/client/store"
	"github.com/daehokim/teambudget/internal/event"
	"github.com/daehokim/teambudget/pkg/logger"
)

type stubFetcher struct {
	mu     sync.Mutex
	amount int64
	err    error
	calls  int
}

func (f *stubFetcher) FetchDefaultMonthlyBudget(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.amount, f.err
}

func newTestEnsurer(t *testing.T, fetcher *stubFetcher) (*budget.Ensurer, *local.EventService, *local.SettingsService) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	events := local.NewEventService(st)
	settings := local.NewSettingsService(st)
	log := logger.New("test", os.Stdout)
	return budget.NewEnsurer(events, settings, fetcher, log.Logger), events, settings
}

func TestEnsureMonthlyBudget_SkipsBeforeInitialSync(t *testing.T) {
	fetcher := &stubFetcher{amount: 500000}
	ensurer, events, _ := newTestEnsurer(t, fetcher)
	ctx := context.Background()

	created, err := ensurer.EnsureMonthlyBudget(ctx, 2026, 9)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, fetcher.calls)

	result, err := events.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestEnsureMonthlyBudget_CreatesOnce(t *testing.T) {
	fetcher := &stubFetcher{amount: 500000}
	ensurer, events, settings := newTestEnsurer(t, fetcher)
	ctx := context.Background()

	require.NoError(t, settings.MarkInitialSyncCompleted(ctx))

	created, err := ensurer.EnsureMonthlyBudget(ctx, 2026, 9)
	require.NoError(t, err)
	assert.True(t, created)

	result, err := events.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, event.TypeBudgetIn, result[0].EventType)
	assert.Equal(t, event.SystemAuthor, result[0].AuthorName)
	assert.Equal(t, int64(500000), result[0].Amount)
	require.NotNil(t, result[0].Description)
	assert.Equal(t, event.MonthlyBudgetDescription, *result[0].Description)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), result[0].EventDate)

	// Second call sees the existing event and does nothing.
	created, err = ensurer.EnsureMonthlyBudget(ctx, 2026, 9)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, fetcher.calls)

	result, err = events.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestEnsureMonthlyBudget_ConcurrentCallsCreateOne(t *testing.T) {
	fetcher := &stubFetcher{amount: 500000}
	ensurer, events, settings := newTestEnsurer(t, fetcher)
	ctx := context.Background()

	require.NoError(t, settings.MarkInitialSyncCompleted(ctx))

	const callers = 3
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan bool, callers)
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			created, err := ensurer.EnsureMonthlyBudget(ctx, 2026, 9)
			results <- created
			errs <- err
		}()
	}

	close(start)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	createdCount := 0
	for created := range results {
		if created {
			createdCount++
		}
	}
	assert.GreaterOrEqual(t, createdCount, 1)

	// One authoritative fetch and one event, no matter how the calls interleave.
	assert.Equal(t, 1, fetcher.calls)

	result, err := events.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, event.TypeBudgetIn, result[0].EventType)
	assert.Equal(t, event.SystemAuthor, result[0].AuthorName)
}

func TestEnsureMonthlyBudget_SkipsUnconfiguredAmount(t *testing.T) {
	fetcher := &stubFetcher{amount: 0}
	ensurer, events, settings := newTestEnsurer(t, fetcher)
	ctx := context.Background()

	require.NoError(t, settings.MarkInitialSyncCompleted(ctx))

	created, err := ensurer.EnsureMonthlyBudget(ctx, 2026, 9)
	require.NoError(t, err)
	assert.False(t, created)

	result, err := events.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestEnsureMonthlyBudget_PropagatesFetchError(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("server unreachable")}
	ensurer, _, settings := newTestEnsurer(t, fetcher)
	ctx := context.Background()

	require.NoError(t, settings.MarkInitialSyncCompleted(ctx))

	_, err := ensurer.EnsureMonthlyBudget(ctx, 2026, 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server unreachable")
}

func TestEnsureMonthlyBudget_IgnoresManualBudgetIn(t *testing.T) {
	fetcher := &stubFetcher{amount: 500000}
	ensurer, events, settings := newTestEnsurer(t, fetcher)
	ctx := context.Background()

	require.NoError(t, settings.MarkInitialSyncCompleted(ctx))

	// A teammate's manual top-up does not count as the recurring budget.
	_, err := events.CreateLocalEvent(ctx, event.CreatePayload{
		EventType:  event.TypeBudgetIn,
		EventDate:  time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		Year:       2026,
		Month:      9,
		AuthorName: "김대호",
		Amount:     100000,
	})
	require.NoError(t, err)

	created, err := ensurer.EnsureMonthlyBudget(ctx, 2026, 9)
	require.NoError(t, err)
	assert.True(t, created)

	result, err := events.GetEventsByMonth(ctx, 2026, 9)
	require.NoError(t, err)
	assert.Len(t, result, 2)
}
