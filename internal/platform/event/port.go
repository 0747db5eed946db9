package event

import (
	"context"

	"github.com/daehokim/teambudget/internal/event"
)

// Repository is the persistence port for the server event log. Sequence
// assignment happens inside the database so it stays monotonic under
// concurrent writers.
type Repository interface {
	// Insert appends one event and returns it with its assigned sequence.
	// A uniqueness violation on the default-monthly-budget key surfaces as
	// a duplicate error distinguishable via IsDuplicate.
	Insert(ctx context.Context, payload event.CreatePayload) (*event.BudgetEvent, error)

	// BulkInsert appends events transactionally: either all land or none.
	BulkInsert(ctx context.Context, payloads []event.CreatePayload) ([]event.BudgetEvent, error)

	// EventsSince returns events with sequence strictly greater than since,
	// ordered ascending.
	EventsSince(ctx context.Context, since int64) ([]event.BudgetEvent, error)

	// EventsByMonth returns the month's events ordered by sequence.
	EventsByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error)

	// FindBySequence returns one event, or event.ErrEventNotFound.
	FindBySequence(ctx context.Context, sequence int64) (*event.BudgetEvent, error)

	// FindReversalOf returns the reversal referencing the sequence, or nil.
	FindReversalOf(ctx context.Context, sequence int64) (*event.BudgetEvent, error)

	// FindDefaultMonthlyBudget returns the month's system BUDGET_IN event,
	// or event.ErrEventNotFound.
	FindDefaultMonthlyBudget(ctx context.Context, year, month int) (*event.BudgetEvent, error)

	// LatestSequence returns the highest assigned sequence, 0 when empty.
	LatestSequence(ctx context.Context) (int64, error)

	// LatestResetSequence returns the sequence of the most recent
	// BUDGET_RESET event, 0 when none exists.
	LatestResetSequence(ctx context.Context) (int64, error)

	// Count returns the total number of events.
	Count(ctx context.Context) (int64, error)

	// IsDuplicate reports whether err is a uniqueness violation.
	IsDuplicate(err error) bool
}

// BudgetCache caches computed monthly budgets keyed by (year, month).
type BudgetCache interface {
	GetBudget(ctx context.Context, year, month int) ([]byte, bool, error)
	SetBudget(ctx context.Context, year, month int, data []byte) error
	InvalidateFrom(ctx context.Context, year, month int) error
}
