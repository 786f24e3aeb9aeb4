package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/wellbeing-safety-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wellbeing-safety-engine/internal/http/middleware"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Safety          *handlers.SafetyHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	// Per-operator limit on admin calls. Zero disables it.
	AdminRatePerSecond float64
	AdminBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Safety != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminRatePerSecond > 0 {
				admin.Use(httpmiddleware.RateLimit(cfg.AdminRatePerSecond, cfg.AdminBurst))
			}
			admin.Post("/users/{userID}/reassessments", cfg.Safety.Reassess)
			admin.Post("/safety-sweeps", cfg.Safety.Sweep)
			admin.Get("/escalation-reviews", cfg.Safety.DueReviews)
		})
	}

	return r
}
