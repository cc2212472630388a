// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazereport/internal/api/health"
	"github.com/good-yellow-bee/blazereport/internal/api/middleware"
	"github.com/good-yellow-bee/blazereport/internal/api/reports"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address         string
	HTTPTLSEnabled  bool
	HTTPTLSCertFile string
	HTTPTLSKeyFile  string
	RateLimitPerIP  int // requests per minute on /api/v1
	ReportTimeout   time.Duration
	BulkTimeout     time.Duration
	MaxBodyBytes    int64
	MaxBulkTenants  int
	MetricsEnabled  bool
	Verbose         bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RateLimitPerIP == 0 {
		c.RateLimitPerIP = 30
	}
	if c.ReportTimeout == 0 {
		c.ReportTimeout = 2 * time.Minute
	}
	if c.BulkTimeout == 0 {
		c.BulkTimeout = 30 * time.Minute
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.MaxBulkTenants == 0 {
		c.MaxBulkTenants = 200
	}
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	engine        reports.Engine
	runner        reports.BulkRunner
	logger        *zap.Logger
	limiter       *middleware.RateLimiter
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server.
func New(cfg *Config, engine reports.Engine, runner reports.BulkRunner, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("report engine is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("bulk runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		engine:        engine,
		runner:        runner,
		logger:        logger,
		limiter:       middleware.NewRateLimiter(cfg.RateLimitPerIP),
		healthHandler: health.NewHandler(),
	}

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.setupRouter(),
		ReadTimeout: 15 * time.Second,
		// Bulk archives are written after the whole batch finishes, which
		// can take up to BulkTimeout.
		WriteTimeout: cfg.BulkTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.HTTPTLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	defer s.limiter.Close()

	go func() {
		s.logger.Info("HTTP API listening", zap.String("address", s.config.Address), zap.Bool("tls", s.config.HTTPTLSEnabled))
		var err error
		if s.config.HTTPTLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.HTTPTLSCertFile, s.config.HTTPTLSKeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthHandler.RegisterChecker(c)
}
