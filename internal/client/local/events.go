// Package local is the client-side mirror of the budget event log: optimistic
// creation of locally originated events under temporary negative sequences,
// reset-horizon reads, and the derived views the UI renders while offline.
package local

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/daehokim/teambudget/internal/client/store"
	"github.com/daehokim/teambudget/internal/event"
)

// EventService reads and writes the local event log.
type EventService struct {
	store   *store.Store
	tempSeq atomic.Int64
}

// NewEventService creates the local event service. The temp-sequence counter
// is seeded from the current time so placeholders from different process
// lifetimes never collide.
func NewEventService(st *store.Store) *EventService {
	s := &EventService{store: st}
	s.tempSeq.Store(-time.Now().UnixNano())
	return s
}

// CreateLocalEvent records a user action immediately: it assigns a fresh
// negative temporary sequence, persists the event, and enqueues a matching
// pending entry in the same transaction. The created event is returned
// synchronously so the UI can render it before any network round-trip.
func (s *EventService) CreateLocalEvent(ctx context.Context, payload event.CreatePayload) (*event.BudgetEvent, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pending := &store.PendingEvent{
		ID:           uuid.NewString(),
		TempSequence: s.nextTempSequence(),
		Payload:      payload,
		Status:       store.PendingStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.store.CreateLocalEvent(ctx, pending)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// nextTempSequence returns a strictly decreasing negative sequence.
func (s *EventService) nextTempSequence() int64 {
	return s.tempSeq.Add(-1)
}

// GetEventsByMonth returns the month's effective events ordered by sequence
// ascending, with the reset horizon already applied. This is the view handed
// to the balance calculator.
func (s *EventService) GetEventsByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error) {
	events, err := s.store.GetEventsByMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}

	horizon, err := s.latestReset(ctx)
	if err != nil {
		return nil, err
	}
	return filterByHorizon(events, horizon), nil
}

// RawEventsByMonth returns the month's events without horizon filtering, for
// audit/history views where pre-reset rows stay visible.
func (s *EventService) RawEventsByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error) {
	return s.store.GetEventsByMonth(ctx, year, month)
}

// SaveEvents idempotently upserts server events into the local log.
func (s *EventService) SaveEvents(ctx context.Context, events []event.BudgetEvent) error {
	return s.store.SaveEvents(ctx, events)
}

// GetLatestSequence returns the sync watermark (0 if never synced).
func (s *EventService) GetLatestSequence(ctx context.Context) (int64, error) {
	return s.store.LastSequence(ctx)
}

// UpdateLastSequence advances the sync watermark.
func (s *EventService) UpdateLastSequence(ctx context.Context, sequence int64) error {
	return s.store.SetLastSequence(ctx, sequence)
}

// MarkSyncState updates the sync badge of a local event.
func (s *EventService) MarkSyncState(ctx context.Context, sequence int64, state event.SyncState) error {
	return s.store.UpdateSyncState(ctx, sequence, state)
}

// ClearAll wipes the local event log and watermark.
func (s *EventService) ClearAll(ctx context.Context) error {
	return s.store.ClearEvents(ctx)
}

// latestReset finds the most recent BUDGET_RESET in the local log. Local
// resets carry negative temp sequences, so recency is decided by creation
// time rather than sequence; sequence only breaks exact-time ties.
func (s *EventService) latestReset(ctx context.Context) (*event.BudgetEvent, error) {
	resets, err := s.store.GetResetEvents(ctx)
	if err != nil {
		return nil, err
	}

	var latest *event.BudgetEvent
	for i := range resets {
		r := &resets[i]
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) ||
			(r.CreatedAt.Equal(latest.CreatedAt) && r.Sequence > latest.Sequence) {
			latest = r
		}
	}
	return latest, nil
}

// filterByHorizon drops events superseded by the given reset. An event
// survives when it was created at or after the reset, or when both carry
// positive server sequences and the event's is at or past the reset's.
// Reset markers themselves are excluded from effective views.
func filterByHorizon(events []event.BudgetEvent, reset *event.BudgetEvent) []event.BudgetEvent {
	if reset == nil {
		return events
	}

	filtered := make([]event.BudgetEvent, 0, len(events))
	for _, e := range events {
		if e.EventType == event.TypeBudgetReset {
			continue
		}
		if !e.CreatedAt.Before(reset.CreatedAt) {
			filtered = append(filtered, e)
			continue
		}
		if e.Sequence > 0 && reset.Sequence > 0 && e.Sequence >= reset.Sequence {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
