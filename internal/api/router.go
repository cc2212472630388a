package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/good-yellow-bee/blazereport/internal/api/middleware"
	"github.com/good-yellow-bee/blazereport/internal/api/reports"
	"github.com/good-yellow-bee/blazereport/pkg/config"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.Recoverer(s.logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, ErrMethodNotAllowed)
	})

	reportHandler := reports.NewHandler(s.engine, s.runner, reports.Options{
		ReportTimeout:  s.config.ReportTimeout,
		BulkTimeout:    s.config.BulkTimeout,
		MaxBodyBytes:   s.config.MaxBodyBytes,
		MaxBulkTenants: s.config.MaxBulkTenants,
	}, s.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(s.limiter))

		r.Post("/reports", reportHandler.Generate)
		r.Post("/reports/bulk", reportHandler.Bulk)
		r.Post("/tenants", reportHandler.Tenants)

		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			OK(w, config.GetBuildInfo())
		})
	})

	// Health and metrics are not rate limited.
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)
	if s.config.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
