package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/upload-broker/internal/auth"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// GrantRateLimit throttles GET /presigned-url per client.
	GrantRateLimit RateLimitConfig
	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		GrantRateLimit: RateLimitConfig{RequestsPerMinute: 60, Burst: 10},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, v auth.Validator, logger *slog.Logger, cfg Config) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(RequireCredentials(v, logger))

		r.Get("/", h.Index)
		r.With(RateLimitMiddleware(cfg.GrantRateLimit)).Get("/presigned-url", h.PresignedURL)
		r.Post("/callback", h.Callback)
		r.Post("/upload", h.Upload)
		r.Delete("/delete-files", h.DeleteFiles)
	})

	return r
}
