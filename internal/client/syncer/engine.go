// Package syncer runs the bidirectional sync cycle: push the pending queue,
// pull new server events, apply budget resets, and renumber surviving local
// events behind the server log.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/daehokim/teambudget/internal/client/api"
	"github.com/daehokim/teambudget/internal/client/local"
	"github.com/daehokim/teambudget/internal/client/pending"
	"github.com/daehokim/teambudget/internal/client/store"
	"github.com/daehokim/teambudget/internal/event"
)

// ErrSyncInProgress is returned when a cycle is requested while another is
// still running. Cycles never interleave.
var ErrSyncInProgress = errors.New("sync already in progress")

// Result summarizes one completed sync cycle.
type Result struct {
	PushedEvents int
	NewEvents    int
	LastSequence int64
	ResetApplied bool
	FullResync   bool
}

// Engine executes sync cycles against the server.
type Engine struct {
	config   *Config
	store    *store.Store
	events   *local.EventService
	settings *local.SettingsService
	queue    *pending.Queue
	server   ServerAPI
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewEngine creates a sync engine.
func NewEngine(
	config *Config,
	st *store.Store,
	events *local.EventService,
	settings *local.SettingsService,
	queue *pending.Queue,
	server ServerAPI,
	logger *slog.Logger,
) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	_ = config.Validate()

	return &Engine{
		config:   config,
		store:    st,
		events:   events,
		settings: settings,
		queue:    queue,
		server:   server,
		logger:   logger.With("service", "syncer"),
	}
}

// Recover returns queue entries abandoned mid-push to 'pending'. Run once at
// startup before the first cycle.
func (e *Engine) Recover(ctx context.Context) error {
	demoted, err := e.queue.DemoteStuck(ctx, e.config.StuckSyncingMaxAge)
	if err != nil {
		return err
	}
	if demoted > 0 {
		e.logger.Warn("recovered stuck queue entries", "count", demoted)
	}
	return nil
}

// Sync runs one full cycle. A push failure stops the push phase but the pull
// phase still runs, so the client keeps receiving teammate events while its
// own writes wait out their backoff. The push error is still returned (with
// the pull results) and recorded, so callers see the cycle as failed.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if !e.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.mu.Unlock()

	result := &Result{}

	pushed, pushErr := e.pushPending(ctx)
	result.PushedEvents = pushed
	if pushErr != nil {
		e.logger.Warn("push phase stopped early", "pushed", pushed, "error", pushErr)
	}

	if err := e.pull(ctx, result); err != nil {
		e.recordOutcome(ctx, err)
		return nil, err
	}

	if pushErr != nil {
		e.recordOutcome(ctx, pushErr)
		return result, pushErr
	}

	e.recordOutcome(ctx, nil)
	e.logger.Info("sync cycle completed",
		"pushed", result.PushedEvents,
		"pulled", result.NewEvents,
		"last_sequence", result.LastSequence,
		"reset_applied", result.ResetApplied)
	return result, nil
}

// pushPending pushes eligible queue entries in strict creation order. The
// first failure stops the phase: later entries may depend causally on the
// failed one, so they are not attempted out of order.
func (e *Engine) pushPending(ctx context.Context) (int, error) {
	entries, err := e.queue.All(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	pushed := 0
	for i := range entries {
		p := &entries[i]
		if !pending.Eligible(p, now) {
			if p.RetryCount >= pending.MaxRetries {
				e.logger.Warn("skipping entry past retry limit", "pending_id", p.ID, "retries", p.RetryCount)
				continue
			}
			continue
		}

		if err := e.queue.MarkSyncing(ctx, p.ID); err != nil {
			return pushed, err
		}

		created, err := e.server.CreateEvent(ctx, p.Payload)
		if err != nil {
			if markErr := e.queue.MarkFailed(ctx, p.ID, err.Error()); markErr != nil {
				e.logger.Error("failed to record push failure", "pending_id", p.ID, "error", markErr)
			}
			_ = e.events.MarkSyncState(ctx, p.TempSequence, event.SyncStateFailed)
			return pushed, err
		}

		created.SyncState = event.SyncStateSynced
		if err := e.store.PromotePending(ctx, p.ID, p.TempSequence, created); err != nil {
			return pushed, err
		}
		pushed++
	}
	return pushed, nil
}

// pull fetches events past the watermark, applies any reset, persists the
// remainder, advances the watermark, and renumbers surviving local events.
func (e *Engine) pull(ctx context.Context, result *Result) error {
	since, err := e.events.GetLatestSequence(ctx)
	if err != nil {
		return err
	}

	resp, err := e.server.SyncSince(ctx, since)
	if err != nil {
		return err
	}

	if resp.NeedsFullSync && since > 0 {
		if err := e.fullResync(ctx); err != nil {
			return err
		}
		result.FullResync = true
		resp, err = e.server.SyncSince(ctx, 0)
		if err != nil {
			return err
		}
	}

	incoming := resp.Events
	if reset := latestReset(incoming); reset != nil {
		if err := e.applyReset(ctx, reset); err != nil {
			return err
		}
		incoming = eventsAtOrPast(incoming, reset.Sequence)
		result.ResetApplied = true
	}

	for i := range incoming {
		incoming[i].SyncState = event.SyncStateSynced
	}

	watermark := resp.LatestSequence
	for _, ev := range incoming {
		if ev.Sequence > watermark {
			watermark = ev.Sequence
		}
	}

	// Renumber before persisting the pulled batch. A previously renumbered
	// shadow sits at watermark+1 and beyond, which is exactly where the server
	// assigns new sequences; moving the shadows first means saving a pulled
	// event never lands on, and renumbering never deletes, a server row.
	if err := e.renumberPending(ctx, watermark); err != nil {
		return err
	}

	if err := e.events.SaveEvents(ctx, incoming); err != nil {
		return err
	}
	result.NewEvents = len(incoming)

	if watermark > 0 {
		if err := e.events.UpdateLastSequence(ctx, watermark); err != nil {
			return err
		}
	}
	result.LastSequence = watermark

	if err := e.settings.MarkInitialSyncCompleted(ctx); err != nil {
		return err
	}
	return nil
}

// applyReset wipes local state made obsolete by a server-side budget reset,
// refetches authoritative settings, and drops pending entries created before
// the reset took effect.
func (e *Engine) applyReset(ctx context.Context, reset *event.BudgetEvent) error {
	e.logger.Info("applying budget reset", "sequence", reset.Sequence, "effective", reset.EventDate)

	if err := e.store.ResetLocalState(ctx); err != nil {
		return err
	}

	settings, err := e.server.GetSettings(ctx)
	if err != nil {
		return err
	}
	if err := e.settings.SetDefaultMonthlyBudget(ctx, settings.DefaultMonthlyBudget); err != nil {
		return err
	}
	if len(settings.Values) > 0 {
		if err := e.settings.ReplaceAll(ctx, settings.Values); err != nil {
			return err
		}
	}

	entries, err := e.queue.All(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		p := &entries[i]
		if p.CreatedAt.Before(reset.EventDate) {
			e.logger.Info("dropping pre-reset pending entry", "pending_id", p.ID)
			if err := e.store.DropPending(ctx, p.ID, p.TempSequence); err != nil {
				return err
			}
		}
	}
	return nil
}

// renumberPending moves every surviving queue entry to a provisional sequence
// directly after the server log, preserving queue order. Every entry is
// rewritten even when its sequence is unchanged: the rewrite rebuilds shadow
// event rows that a reset wipe or a full resync removed.
func (e *Engine) renumberPending(ctx context.Context, serverLast int64) error {
	entries, err := e.queue.All(ctx)
	if err != nil {
		return err
	}

	next := serverLast
	for i := range entries {
		next++
		if err := e.store.RenumberPending(ctx, &entries[i], next); err != nil {
			return err
		}
	}
	return nil
}

// fullResync re-uploads the entire local log after the server lost its event
// table. Only server-acknowledged events are re-sent; queued entries follow
// through the normal push path.
func (e *Engine) fullResync(ctx context.Context) error {
	e.logger.Warn("server requested full resync, re-uploading local log")

	all, err := e.store.AllEvents(ctx)
	if err != nil {
		return err
	}

	var payloads []event.CreatePayload
	for _, ev := range all {
		if ev.Sequence <= 0 || ev.IsLocalOnly {
			continue
		}
		payloads = append(payloads, payloadFromEvent(&ev))
	}
	if len(payloads) == 0 {
		return nil
	}

	if _, err := e.server.BulkCreateEvents(ctx, payloads); err != nil {
		return err
	}

	// The server reassigned sequences; drop the local copy and re-pull.
	return e.events.ClearAll(ctx)
}

// recordOutcome persists the sync status record for the UI. Failures to write
// the record never fail the cycle.
func (e *Engine) recordOutcome(ctx context.Context, syncErr error) {
	count, err := e.queue.Count(ctx)
	if err != nil {
		e.logger.Error("failed to count pending queue", "error", err)
		return
	}
	hasPending := count > 0

	if syncErr == nil {
		if err := e.store.RecordSyncSuccess(ctx, hasPending); err != nil {
			e.logger.Error("failed to record sync success", "error", err)
		}
		return
	}
	if err := e.store.RecordSyncError(ctx, syncErr.Error(), hasPending); err != nil {
		e.logger.Error("failed to record sync error", "error", err)
	}
}

// Status returns the last recorded sync outcome.
func (e *Engine) Status(ctx context.Context) (*store.SyncStatus, error) {
	return e.store.GetSyncStatus(ctx)
}

// IsRejection reports whether the error is a server-side rejection rather
// than a transport failure.
func IsRejection(err error) bool {
	var apiErr *api.APIError
	return errors.As(err, &apiErr)
}

func latestReset(events []event.BudgetEvent) *event.BudgetEvent {
	var latest *event.BudgetEvent
	for i := range events {
		e := &events[i]
		if e.EventType != event.TypeBudgetReset {
			continue
		}
		if latest == nil || e.Sequence > latest.Sequence {
			latest = e
		}
	}
	return latest
}

func eventsAtOrPast(events []event.BudgetEvent, sequence int64) []event.BudgetEvent {
	kept := make([]event.BudgetEvent, 0, len(events))
	for _, e := range events {
		if e.Sequence >= sequence {
			kept = append(kept, e)
		}
	}
	return kept
}

func payloadFromEvent(e *event.BudgetEvent) event.CreatePayload {
	return event.CreatePayload{
		EventType:         e.EventType,
		EventDate:         e.EventDate,
		Year:              e.Year,
		Month:             e.Month,
		AuthorName:        e.AuthorName,
		Amount:            e.Amount,
		StoreName:         e.StoreName,
		Description:       e.Description,
		ReceiptImage:      e.ReceiptImage,
		OcrRawData:        e.OcrRawData,
		ReferenceSequence: e.ReferenceSequence,
	}
}
