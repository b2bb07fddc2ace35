package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/searchsync/pkg/health"
	"github.com/utafrali/searchsync/pkg/middleware"
)

// RouterConfig holds the dependencies of the HTTP surface.
type RouterConfig struct {
	Admin  *AdminHandler
	Search *SearchHandler
	Health *health.Handler
	// AdminToken and AdminJWTSecret protect /admin when either is set.
	AdminToken     string
	AdminJWTSecret string
	Logger         *slog.Logger
}

// NewRouter creates a chi router with all search sync routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("search-sync"))
	r.Use(chimw.Compress(5))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		if validate := adminAuth(cfg); validate != nil {
			r.Use(middleware.BearerAuth(validate))
		}
		r.Use(chimw.Timeout(30 * time.Second))
		r.Post("/sync", cfg.Admin.Sync)
		r.Get("/index-status", cfg.Admin.IndexStatus)
	})

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Get("/{index}", cfg.Search.Search)
	})

	return r
}

// adminAuth returns the token validator of the admin routes, or nil when
// they are open.
func adminAuth(cfg RouterConfig) middleware.TokenValidator {
	var validators []middleware.TokenValidator
	if cfg.AdminToken != "" {
		validators = append(validators, middleware.StaticToken(cfg.AdminToken, "admin"))
	}
	if cfg.AdminJWTSecret != "" {
		validators = append(validators, middleware.JWT(cfg.AdminJWTSecret))
	}
	switch len(validators) {
	case 0:
		return nil
	case 1:
		return validators[0]
	default:
		return middleware.AnyToken(validators...)
	}
}
