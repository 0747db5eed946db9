// Package budget derives monthly balances from the budget event log.
//
// Balances are never persisted; they are recomputed on demand by replaying
// the events of a month plus the carried-over balance of the previous month.
package budget

import (
	"context"
	"fmt"

	"github.com/daehokim/teambudget/internal/event"
)

// epochYear bounds the carry-over recursion. No deployment has events before
// this, so walking past it would only manufacture empty months.
const epochYear = 2000

// MonthlyBudget is the derived double-entry view of one month.
type MonthlyBudget struct {
	Year            int   `json:"year"`
	Month           int   `json:"month"`
	BudgetIn        int64 `json:"budgetIn"`
	PreviousBalance int64 `json:"previousBalance"`
	TotalBudget     int64 `json:"totalBudget"`
	TotalSpent      int64 `json:"totalSpent"`
	Balance         int64 `json:"balance"`
	EventCount      int   `json:"eventCount"`
}

// EventSource supplies the effective event set of a month. Implementations
// are expected to have already applied the reset horizon.
type EventSource interface {
	GetEventsByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error)
}

// Calculator computes monthly budgets with previous-month carry-over.
type Calculator struct {
	events EventSource
}

// NewCalculator creates a calculator backed by the given event source.
func NewCalculator(events EventSource) *Calculator {
	return &Calculator{events: events}
}

type monthKey struct {
	year  int
	month int
}

// Calculate computes the budget for (year, month).
//
// The previous month's balance is carried over only when that month has at
// least one event; the recursion therefore walks the chain of months that
// actually exist and terminates at the first gap (or at the start of the
// epoch year).
// A per-call memo keeps the walk linear when several months are requested
// through the same recursion.
func (c *Calculator) Calculate(ctx context.Context, year, month int) (*MonthlyBudget, error) {
	return c.calculate(ctx, year, month, make(map[monthKey]*MonthlyBudget))
}

func (c *Calculator) calculate(ctx context.Context, year, month int, memo map[monthKey]*MonthlyBudget) (*MonthlyBudget, error) {
	key := monthKey{year, month}
	if cached, ok := memo[key]; ok {
		return cached, nil
	}

	events, err := c.events.GetEventsByMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %d-%02d: %w", year, month, err)
	}

	budgetIn, totalSpent := sum(events)

	var previousBalance int64
	if year > epochYear || month > 1 {
		prevYear, prevMonth := previousMonth(year, month)

		prevEvents, err := c.events.GetEventsByMonth(ctx, prevYear, prevMonth)
		if err != nil {
			return nil, fmt.Errorf("failed to load events for %d-%02d: %w", prevYear, prevMonth, err)
		}
		if len(prevEvents) > 0 {
			prev, err := c.calculate(ctx, prevYear, prevMonth, memo)
			if err != nil {
				return nil, err
			}
			previousBalance = prev.Balance
		}
	}

	totalBudget := previousBalance + budgetIn
	result := &MonthlyBudget{
		Year:            year,
		Month:           month,
		BudgetIn:        budgetIn,
		PreviousBalance: previousBalance,
		TotalBudget:     totalBudget,
		TotalSpent:      totalSpent,
		Balance:         totalBudget - totalSpent,
		EventCount:      len(events),
	}
	memo[key] = result
	return result, nil
}

// sum partitions events into the incoming and outgoing streams. Reversals
// credit back into the outgoing stream, floored at zero in case a reversal
// arrives without its matching expense.
func sum(events []event.BudgetEvent) (budgetIn, totalSpent int64) {
	for _, e := range events {
		switch {
		case e.EventType.Incoming():
			budgetIn += e.Amount
		case e.EventType.Outgoing():
			totalSpent += e.Amount
		case e.EventType == event.TypeExpenseReversal:
			totalSpent -= e.Amount
		}
	}
	if totalSpent < 0 {
		totalSpent = 0
	}
	return budgetIn, totalSpent
}

func previousMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
