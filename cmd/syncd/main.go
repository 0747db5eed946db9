// syncd runs the offline-first client core as a background daemon: it keeps
// the local SQLite event log in sync with the team budget server and creates
// the default monthly budget when a new month starts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/daehokim/teambudget/internal/client/api"
	clientbudget "github.com/daehokim/teambudget/internal/client/budget"
	"github.com/daehokim/teambudget/internal/client/local"
	"github.com/daehokim/teambudget/internal/client/pending"
	"github.com/daehokim/teambudget/internal/client/store"
	"github.com/daehokim/teambudget/internal/client/syncer"
	"github.com/daehokim/teambudget/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	serverURL := getEnv("SERVER_URL", "http://localhost:8080")
	dbPath := getEnv("CLIENT_DB_PATH", "teambudget.db")
	token := getEnv("DEVICE_TOKEN", "")
	env := getEnv("ENV", "development")

	log := logger.NewDefault(env)
	log.Info("Starting sync daemon", "server", serverURL, "db", dbPath)

	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open local store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	events := local.NewEventService(st)
	settings := local.NewSettingsService(st)
	queue := pending.NewQueue(st)
	server := api.NewClient(serverURL, token)

	syncCfg := syncer.DefaultConfig()
	if raw := os.Getenv("SYNC_POLL_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			syncCfg.PollInterval = d
		}
	}

	engine := syncer.NewEngine(syncCfg, st, events, settings, queue, server, log.Logger)
	runner := syncer.NewRunner(engine, syncCfg, log.Logger)
	ensurer := clientbudget.NewEnsurer(events, settings, server, log.Logger)

	go runner.Run(ctx)

	// Check once per hour whether the current month still needs its default
	// budget event. The ensurer itself makes the check idempotent.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			now := time.Now()
			if _, err := ensurer.EnsureMonthlyBudget(ctx, now.Year(), int(now.Month())); err != nil {
				log.Warn("monthly budget check failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")
	runner.Stop()
	log.Info("Sync daemon stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
