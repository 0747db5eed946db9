package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daehokim/teambudget/internal/infra/postgres"
	infraRedis "github.com/daehokim/teambudget/internal/infra/redis"
	platformevent "github.com/daehokim/teambudget/internal/platform/event"
	"github.com/daehokim/teambudget/internal/platform/settings"
	"github.com/daehokim/teambudget/internal/transport/httpapi"
	"github.com/daehokim/teambudget/internal/transport/httpapi/handler"
	"github.com/daehokim/teambudget/internal/transport/httpapi/middleware"
	"github.com/daehokim/teambudget/pkg/config"
	"github.com/daehokim/teambudget/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting team budget API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Initialize database connection pool
	dbCfg := postgres.Config{
		URL: cfg.DatabaseURL,
	}
	db, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Apply schema migrations
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("Failed to apply migrations", "error", err)
		os.Exit(1)
	}
	log.Info("Database migrations applied")

	// Initialize Redis-backed budget cache (optional)
	var budgetCache platformevent.BudgetCache
	if cfg.RedisEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		budgetCache = infraRedis.NewBudgetCache(redisClient, log)
		log.Info("Redis connection established")
	} else {
		log.Warn("Redis disabled, monthly budgets computed on every read")
	}

	// Initialize repositories and services
	eventRepo := postgres.NewEventRepository(db.Pool)
	settingsRepo := postgres.NewSettingsRepository(db.Pool)

	eventSvc := platformevent.NewService(eventRepo, budgetCache, log)
	settingsSvc := settings.NewService(settingsRepo, log)

	// Initialize HTTP handlers
	eventHandler := handler.NewEventHandler(eventSvc)
	budgetHandler := handler.NewBudgetHandler(eventSvc)
	settingsHandler := handler.NewSettingsHandler(settingsSvc)
	healthHandler := handler.NewHealthHandler(db)

	// Authentication is optional for trusted single-office deployments
	var authHandler *handler.AuthHandler
	var jwtMiddleware func(http.Handler) http.Handler
	if cfg.AuthEnabled() {
		jwtSvc := middleware.NewJWTService(cfg.JWTSecret)
		authHandler = handler.NewAuthHandler(jwtSvc, cfg.TeamKey)
		jwtMiddleware = middleware.JWTMiddleware(jwtSvc)
		log.Info("Device token authentication enabled")
	} else {
		log.Warn("JWT_SECRET not configured, API authentication disabled")
	}

	// Create HTTP router
	routerCfg := httpapi.Config{
		Logger:          log,
		AllowedOrigins:  cfg.AllowedOrigins,
		AuthHandler:     authHandler,
		EventHandler:    eventHandler,
		BudgetHandler:   budgetHandler,
		SettingsHandler: settingsHandler,
		HealthHandler:   healthHandler,
		JWTMiddleware:   jwtMiddleware,
	}
	r := httpapi.NewRouter(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
