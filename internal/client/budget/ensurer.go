// Package budget (client side) creates the recurring default monthly budget
// event exactly once per month, no matter how many callers race to trigger it.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/daehokim/teambudget/internal/client/local"
	"github.com/daehokim/teambudget/internal/event"
)

// SettingsFetcher fetches the authoritative default budget amount.
type SettingsFetcher interface {
	FetchDefaultMonthlyBudget(ctx context.Context) (int64, error)
}

// Ensurer creates the system BUDGET_IN event for a month if it does not exist
// yet. Concurrent calls for the same month collapse into one attempt, and the
// server's uniqueness constraint catches races across devices.
type Ensurer struct {
	events   *local.EventService
	settings *local.SettingsService
	fetcher  SettingsFetcher
	logger   *slog.Logger
	group    singleflight.Group
}

func NewEnsurer(
	events *local.EventService,
	settings *local.SettingsService,
	fetcher SettingsFetcher,
	logger *slog.Logger,
) *Ensurer {
	return &Ensurer{
		events:   events,
		settings: settings,
		fetcher:  fetcher,
		logger:   logger.With("service", "budget_ensurer"),
	}
}

// EnsureMonthlyBudget guarantees the month has its default BUDGET_IN event.
// Returns true when this call created it, false when it already existed or
// creation was skipped. Skips entirely before the first full sync, since an
// unsynced client cannot know whether the event already exists server-side.
func (e *Ensurer) EnsureMonthlyBudget(ctx context.Context, year, month int) (bool, error) {
	key := fmt.Sprintf("%04d-%02d", year, month)
	created, err, _ := e.group.Do(key, func() (any, error) {
		return e.ensure(ctx, year, month)
	})
	if err != nil {
		return false, err
	}
	return created.(bool), nil
}

func (e *Ensurer) ensure(ctx context.Context, year, month int) (bool, error) {
	synced, err := e.settings.InitialSyncCompleted(ctx)
	if err != nil {
		return false, err
	}
	if !synced {
		e.logger.Debug("initial sync incomplete, skipping monthly budget", "year", year, "month", month)
		return false, nil
	}

	exists, err := e.monthlyBudgetExists(ctx, year, month)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	amount, err := e.fetcher.FetchDefaultMonthlyBudget(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to fetch default budget: %w", err)
	}
	if amount <= 0 {
		e.logger.Info("default monthly budget not configured, skipping", "year", year, "month", month)
		return false, nil
	}

	description := event.MonthlyBudgetDescription
	_, err = e.events.CreateLocalEvent(ctx, event.CreatePayload{
		EventType:   event.TypeBudgetIn,
		EventDate:   time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
		Year:        year,
		Month:       month,
		AuthorName:  event.SystemAuthor,
		Amount:      amount,
		Description: &description,
	})
	if err != nil {
		return false, err
	}

	e.logger.Info("created default monthly budget", "year", year, "month", month, "amount", amount)
	return true, nil
}

// monthlyBudgetExists checks the effective local log for the system BUDGET_IN
// event of the month.
func (e *Ensurer) monthlyBudgetExists(ctx context.Context, year, month int) (bool, error) {
	events, err := e.events.GetEventsByMonth(ctx, year, month)
	if err != nil {
		return false, err
	}
	for i := range events {
		ev := &events[i]
		if ev.EventType == event.TypeBudgetIn &&
			ev.AuthorName == event.SystemAuthor &&
			ev.Description != nil && *ev.Description == event.MonthlyBudgetDescription {
			return true, nil
		}
	}
	return false, nil
}
