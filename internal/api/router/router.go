package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmiddleware "github.com/wolfman30/storefront-bridge/internal/http/middleware"
	"github.com/wolfman30/storefront-bridge/internal/intake"
	"github.com/wolfman30/storefront-bridge/internal/observability/metrics"
	"github.com/wolfman30/storefront-bridge/pkg/logging"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 200 << 10

// RouteLimit is the sliding-window ceiling for one route.
type RouteLimit struct {
	Limit  int
	Window time.Duration
}

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Intake             *intake.Handler
	Metrics            *metrics.IntakeMetrics
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	TrustProxy         bool

	// RateLimitStore is shared by both routes; keys are scoped per route.
	RateLimitStore httpmiddleware.WindowStore
	OrderLimit     RouteLimit
	LeadLimit      RouteLimit
}

// New creates a Chi router with the intake routes configured.
func New(cfg *Config) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.OrderLimit.Limit <= 0 {
		cfg.OrderLimit = RouteLimit{Limit: 8, Window: 2 * time.Minute}
	}
	if cfg.LeadLimit.Limit <= 0 {
		cfg.LeadLimit = RouteLimit{Limit: 6, Window: time.Minute}
	}
	if cfg.RateLimitStore == nil {
		cfg.RateLimitStore = httpmiddleware.NewMemoryWindowStore()
	}
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.TrustProxy))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestSize(cfg.MaxBodyBytes))

	r.Get("/health", cfg.Intake.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/telegram", func(api chi.Router) {
		api.With(limiter(cfg, "order", cfg.OrderLimit)).Post("/order", cfg.Intake.Order)
		api.With(limiter(cfg, "lead", cfg.LeadLimit)).Post("/lead", cfg.Intake.Lead)
	})

	return r
}

func limiter(cfg *Config, name string, limit RouteLimit) func(http.Handler) http.Handler {
	return httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
		Name:       name,
		Limit:      limit.Limit,
		Window:     limit.Window,
		Store:      cfg.RateLimitStore,
		TrustProxy: cfg.TrustProxy,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
}
