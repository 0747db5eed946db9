// Package event implements the server side of the budget event log: the
// single sequence authority, idempotent event creation, incremental sync, and
// derived monthly budget views.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/daehokim/teambudget/internal/budget"
	"github.com/daehokim/teambudget/internal/event"
	apperrors "github.com/daehokim/teambudget/internal/shared/errors"
	"github.com/daehokim/teambudget/pkg/logger"
)

// SyncResult is the answer to an incremental sync request.
type SyncResult struct {
	Events         []event.BudgetEvent `json:"events"`
	LatestSequence int64               `json:"latestSequence"`
	NeedsFullSync  bool                `json:"needsFullSync"`
}

// Service owns the server event log.
type Service struct {
	repo   Repository
	cache  BudgetCache
	logger *logger.Logger
}

// NewService creates the event service. cache may be nil; budgets are then
// computed on every read.
func NewService(repo Repository, cache BudgetCache, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: log.WithField("service", "event"),
	}
}

// CreateEvent validates and appends one event, assigning its sequence.
//
// Creation of the default monthly budget event is idempotent: when two
// clients race, the loser's uniqueness violation resolves to the winner's
// row, so both receive the same event.
func (s *Service) CreateEvent(ctx context.Context, payload event.CreatePayload) (*event.BudgetEvent, error) {
	if err := payload.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	if payload.EventType == event.TypeExpenseReversal {
		if err := s.validateReversal(ctx, payload); err != nil {
			return nil, err
		}
	}

	created, err := s.repo.Insert(ctx, payload)
	if err != nil {
		if s.repo.IsDuplicate(err) && payload.IsDefaultMonthlyBudget() {
			existing, findErr := s.repo.FindDefaultMonthlyBudget(ctx, payload.Year, payload.Month)
			if findErr != nil {
				return nil, apperrors.DatabaseError("failed to resolve duplicate monthly budget", findErr)
			}
			s.logger.Info("monthly budget already exists, returning existing event",
				"year", payload.Year, "month", payload.Month, "sequence", existing.Sequence)
			return existing, nil
		}
		if s.repo.IsDuplicate(err) {
			return nil, apperrors.Conflict("event already exists")
		}
		return nil, apperrors.DatabaseError("failed to insert event", err)
	}

	s.invalidateBudgets(ctx, created.Year, created.Month)

	s.logger.Info("event created",
		"sequence", created.Sequence,
		"event_type", created.EventType,
		"year", created.Year, "month", created.Month,
		"amount", created.Amount)
	return created, nil
}

// validateReversal rejects reversals of missing, non-expense, or
// already-reversed events.
func (s *Service) validateReversal(ctx context.Context, payload event.CreatePayload) error {
	target, err := s.repo.FindBySequence(ctx, *payload.ReferenceSequence)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			return apperrors.NotFound("expense to reverse")
		}
		return apperrors.DatabaseError("failed to load reversal target", err)
	}
	if target.EventType != event.TypeExpense {
		return apperrors.Validation("only expenses can be reversed")
	}

	reversal, err := s.repo.FindReversalOf(ctx, target.Sequence)
	if err != nil {
		return apperrors.DatabaseError("failed to check existing reversal", err)
	}
	if reversal != nil {
		return apperrors.Conflict("expense is already reversed")
	}
	return nil
}

// SyncSince returns every event past the client's watermark.
//
// When a reset happened past the watermark, the window is widened to start
// one event before the reset so the client always receives the reset marker
// itself. An empty event table with a positive watermark means the server
// lost its log; the client is told to re-upload.
func (s *Service) SyncSince(ctx context.Context, since int64) (*SyncResult, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to count events", err)
	}
	if count == 0 && since > 0 {
		return &SyncResult{Events: []event.BudgetEvent{}, NeedsFullSync: true}, nil
	}

	effectiveSince := since
	resetSeq, err := s.repo.LatestResetSequence(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to find latest reset", err)
	}
	if resetSeq > 0 && effectiveSince < resetSeq-1 {
		effectiveSince = resetSeq - 1
	}

	events, err := s.repo.EventsSince(ctx, effectiveSince)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to load events", err)
	}

	latest, err := s.repo.LatestSequence(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to read latest sequence", err)
	}

	if events == nil {
		events = []event.BudgetEvent{}
	}
	return &SyncResult{Events: events, LatestSequence: latest}, nil
}

// GetEventsByMonth returns the month's effective events: resets and rows
// before the latest reset are excluded.
func (s *Service) GetEventsByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error) {
	events, err := s.repo.EventsByMonth(ctx, year, month)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to load month events", err)
	}

	resetSeq, err := s.repo.LatestResetSequence(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to find latest reset", err)
	}

	effective := make([]event.BudgetEvent, 0, len(events))
	for _, e := range events {
		if e.EventType == event.TypeBudgetReset {
			continue
		}
		if e.Sequence >= resetSeq {
			effective = append(effective, e)
		}
	}
	return effective, nil
}

// ActiveExpenses returns the month's expenses that have no reversal, ordered
// by event date.
func (s *Service) ActiveExpenses(ctx context.Context, year, month int) ([]event.BudgetEvent, error) {
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

	expenses := make([]event.BudgetEvent, 0)
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

// MonthlyBudget computes the month's derived budget, serving from cache when
// possible.
func (s *Service) MonthlyBudget(ctx context.Context, year, month int) (*budget.MonthlyBudget, error) {
	if s.cache != nil {
		data, ok, err := s.cache.GetBudget(ctx, year, month)
		if err != nil {
			s.logger.Warn("budget cache read failed", "error", err)
		} else if ok {
			var cached budget.MonthlyBudget
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	calc := budget.NewCalculator(eventSourceFunc(s.GetEventsByMonth))
	result, err := calc.Calculate(ctx, year, month)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			if err := s.cache.SetBudget(ctx, year, month, data); err != nil {
				s.logger.Warn("budget cache write failed", "error", err)
			}
		}
	}
	return result, nil
}

// BulkCreate transactionally imports a client's log after the server lost its
// own. Only an empty event table accepts a bulk import.
func (s *Service) BulkCreate(ctx context.Context, payloads []event.CreatePayload) ([]event.BudgetEvent, error) {
	for i := range payloads {
		if err := payloads[i].Validate(); err != nil {
			return nil, apperrors.Validation(err.Error())
		}
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to count events", err)
	}
	if count > 0 {
		return nil, apperrors.Conflict("bulk import requires an empty event log")
	}

	created, err := s.repo.BulkInsert(ctx, payloads)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to bulk insert events", err)
	}

	s.invalidateAllBudgets(ctx)
	s.logger.Info("bulk import completed", "count", len(created))
	return created, nil
}

// LatestSequence returns the newest assigned sequence.
func (s *Service) LatestSequence(ctx context.Context) (int64, error) {
	latest, err := s.repo.LatestSequence(ctx)
	if err != nil {
		return 0, apperrors.DatabaseError("failed to read latest sequence", err)
	}
	return latest, nil
}

func (s *Service) invalidateBudgets(ctx context.Context, year, month int) {
	if s.cache == nil {
		return
	}
	// Carry-over propagates forward, so every month from the written one on
	// is stale.
	if err := s.cache.InvalidateFrom(ctx, year, month); err != nil {
		s.logger.Warn("budget cache invalidation failed", "error", err)
	}
}

func (s *Service) invalidateAllBudgets(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFrom(ctx, 0, 1); err != nil {
		s.logger.Warn("budget cache invalidation failed", "error", err)
	}
}

// eventSourceFunc adapts a function to the calculator's event source port.
type eventSourceFunc func(ctx context.Context, year, month int) ([]event.BudgetEvent, error)

func (f eventSourceFunc) GetEventsByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error) {
	return f(ctx, year, month)
}
