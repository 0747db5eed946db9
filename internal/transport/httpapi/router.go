package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/daehokim/teambudget/internal/transport/httpapi/handler"
	"github.com/daehokim/teambudget/internal/transport/httpapi/middleware"
	"github.com/daehokim/teambudget/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger          *logger.Logger
	AllowedOrigins  []string
	AuthHandler     *handler.AuthHandler
	EventHandler    *handler.EventHandler
	BudgetHandler   *handler.BudgetHandler
	SettingsHandler *handler.SettingsHandler
	HealthHandler   *handler.HealthHandler
	JWTMiddleware   func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit()) // Rate limiting: 100 req/s with burst of 20

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Device enrollment (public, gated by team key)
		if cfg.AuthHandler != nil {
			r.Post("/auth/device", cfg.AuthHandler.RegisterDevice)
		}

		r.Group(func(r chi.Router) {
			if cfg.JWTMiddleware != nil {
				r.Use(cfg.JWTMiddleware)
			}

			// Event log routes
			if cfg.EventHandler != nil {
				r.Post("/events", cfg.EventHandler.CreateEvent)
				r.Post("/events/bulk", cfg.EventHandler.BulkCreateEvents)
				r.Get("/events/sync", cfg.EventHandler.SyncEvents)
				r.Get("/events/{year}/{month}", cfg.EventHandler.GetMonthEvents)
				r.Get("/expenses/{year}/{month}", cfg.EventHandler.GetActiveExpenses)
			}

			// Derived budget routes
			if cfg.BudgetHandler != nil {
				r.Get("/budget/{year}/{month}", cfg.BudgetHandler.GetMonthlyBudget)
			}

			// Settings routes
			if cfg.SettingsHandler != nil {
				r.Get("/settings", cfg.SettingsHandler.GetSettings)
				r.Put("/settings/default-budget", cfg.SettingsHandler.UpdateDefaultBudget)
			}
		})
	})

	return r
}
