package local

import (
	"context"
	"sort"

	"github.com/daehokim/teambudget/internal/event"
)

// ActiveExpensesByMonth returns the month's EXPENSE events that have not been
// reversed, ordered by event date ascending. Horizon filtering applies first,
// so pre-reset expenses never surface.
func (s *EventService) ActiveExpensesByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error) {
	events, err := s.GetEventsByMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}

	reversed := make(map[int64]bool)
	for _, e := range events {
		if e.EventType == event.TypeExpenseReversal && e.ReferenceSequence != nil {
			reversed[*e.ReferenceSequence] = true
		}
	}

	var expenses []event.BudgetEvent
	for _, e := range events {
		if e.EventType == event.TypeExpense && !reversed[e.Sequence] {
			expenses = append(expenses, e)
		}
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].EventDate.Before(expenses[j].EventDate)
	})
	return expenses, nil
}

// IsExpenseReversed reports whether a reversal event references the sequence.
func (s *EventService) IsExpenseReversed(ctx context.Context, sequence int64) (bool, error) {
	ref, err := s.store.GetEventByReference(ctx, sequence)
	if err != nil {
		return false, err
	}
	return ref != nil && ref.EventType == event.TypeExpenseReversal, nil
}

// GetExpense returns an EXPENSE event by sequence.
func (s *EventService) GetExpense(ctx context.Context, sequence int64) (*event.BudgetEvent, error) {
	e, err := s.store.GetEvent(ctx, sequence)
	if err != nil {
		return nil, err
	}
	if e.EventType != event.TypeExpense {
		return nil, event.ErrNotAnExpense
	}
	return e, nil
}

// ReverseExpense creates a local EXPENSE_REVERSAL for the given expense. The
// reversal mirrors the expense's amount and month and references it by
// sequence. Reversing twice is rejected.
func (s *EventService) ReverseExpense(ctx context.Context, sequence int64, authorName string) (*event.BudgetEvent, error) {
	expense, err := s.GetExpense(ctx, sequence)
	if err != nil {
		return nil, err
	}

	reversed, err := s.IsExpenseReversed(ctx, sequence)
	if err != nil {
		return nil, err
	}
	if reversed {
		return nil, event.ErrAlreadyReversed
	}

	return s.CreateLocalEvent(ctx, event.CreatePayload{
		EventType:         event.TypeExpenseReversal,
		EventDate:         expense.EventDate,
		Year:              expense.Year,
		Month:             expense.Month,
		AuthorName:        authorName,
		Amount:            expense.Amount,
		StoreName:         expense.StoreName,
		Description:       expense.Description,
		ReferenceSequence: &expense.Sequence,
	})
}
