package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Runner drives the engine on a fixed interval in the background.
type Runner struct {
	engine  *Engine
	config  *Config
	logger  *slog.Logger
	stopCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRunner creates a background sync runner.
func NewRunner(engine *Engine, config *Config, logger *slog.Logger) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	_ = config.Validate()

	return &Runner{
		engine: engine,
		config: config,
		logger: logger.With("service", "sync_runner"),
		stopCh: make(chan struct{}),
	}
}

// Run starts the background sync loop. It recovers abandoned queue entries,
// syncs once immediately, then syncs on every tick until the context is
// cancelled or Stop is called.
func (r *Runner) Run(ctx context.Context) {
	if !r.config.Enabled {
		r.logger.Info("background sync is disabled")
		return
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info("starting background sync", "poll_interval", r.config.PollInterval)

	if err := r.engine.Recover(ctx); err != nil {
		r.logger.Error("queue recovery failed", "error", err)
	}

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.syncOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("background sync stopping (context done)")
			return
		case <-r.stopCh:
			r.logger.Info("background sync stopping (stop signal)")
			return
		case <-ticker.C:
			r.syncOnce(ctx)
		}
	}
}

// Stop stops the background loop.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	close(r.stopCh)
	r.running = false
}

func (r *Runner) syncOnce(ctx context.Context) {
	if _, err := r.engine.Sync(ctx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			return
		}
		r.logger.Error("sync cycle failed", "error", err)
	}
}
