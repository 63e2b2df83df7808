package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/neexbeast/travelapi-search/internal/obs"
)

// RouterConfig holds everything NewRouter wires together. Redis and Metrics
// may be nil.
type RouterConfig struct {
	Handlers           *Handlers
	BearerToken        string
	RateLimitPerMinute int
	DB                 Pinger
	Redis              Pinger
	Metrics            *obs.Metrics
	Log                *slog.Logger
}

// NewRouter builds and returns the Chi router with all routes configured.
// Health and metrics are unauthenticated; search requires bearer auth when a
// token is configured. Rate limiting is applied per IP.
func NewRouter(cfg RouterConfig) *chi.Mux {
	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 60
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(Logging(log))
	r.Use(Metrics(cfg.Metrics))
	r.Use(CORS)
	r.Use(httprate.LimitByIP(limit, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(cfg.DB, cfg.Redis, log))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.BearerToken))
		r.Post("/api/v1/search", cfg.Handlers.Search)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
