package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentfleet/api/handlers"
	"github.com/BaSui01/agentfleet/config"
	"github.com/BaSui01/agentfleet/internal/metrics"
	"github.com/BaSui01/agentfleet/internal/server"
)

// HierarchyPath is the dashboard's hierarchy endpoint.
const HierarchyPath = "/api/v1/agents/hierarchy"

// publicPaths bypass authentication.
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server runs the API listener and the separate metrics listener.
type Server struct {
	cfg       *config.Config
	source    handlers.GraphSource
	checks    []handlers.HealthCheck
	collector *metrics.Collector
	logger    *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	// 限流清理 goroutine 的生命周期
	cancel context.CancelFunc
}

// NewServer creates a server for source. collector may be nil.
func NewServer(cfg *config.Config, source handlers.GraphSource, collector *metrics.Collector, logger *zap.Logger, checks ...handlers.HealthCheck) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		source:    source,
		checks:    checks,
		collector: collector,
		logger:    logger,
	}
}

// Handler builds the routed API handler wrapped in the middleware chain.
// ctx bounds background middleware goroutines.
func (s *Server) Handler(ctx context.Context) http.Handler {
	health := handlers.NewHealthHandler(s.logger)
	for _, c := range s.checks {
		health.RegisterCheck(c)
	}
	hierarchy := handlers.NewHierarchyHandler(s.source, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.HandleHealth)
	mux.HandleFunc("/healthz", health.HandleHealthz)
	mux.HandleFunc("/ready", health.HandleReady)
	mux.HandleFunc("/readyz", health.HandleReady)
	mux.HandleFunc("/version", health.HandleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc(HierarchyPath, hierarchy.HandleHierarchy)

	routes := append([]string{HierarchyPath}, publicPaths...)
	srv := s.cfg.Server
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector, routes),
		CORS(srv.CORSAllowedOrigins),
		RateLimiter(ctx, srv.RateLimitRPS, srv.RateLimitBurst, s.logger),
		APIKeyAuth(srv.APIKeys, publicPaths, srv.AllowQueryAPIKey, s.logger),
		JWTAuth(srv.JWT, publicPaths, s.logger),
	)
}

// Start starts both listeners without blocking.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	srv := s.cfg.Server
	s.httpManager = server.NewManager("api", s.Handler(ctx), server.Config{
		Addr:            fmt.Sprintf(":%d", srv.HTTPPort),
		TLSCertFile:     srv.TLSCertFile,
		TLSKeyFile:      srv.TLSKeyFile,
		ReadTimeout:     srv.ReadTimeout,
		WriteTimeout:    srv.WriteTimeout,
		IdleTimeout:     2 * srv.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: srv.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if srv.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsManager = server.NewManager("metrics", mux, server.Config{
			Addr:            fmt.Sprintf(":%d", srv.MetricsPort),
			ReadTimeout:     srv.ReadTimeout,
			WriteTimeout:    srv.WriteTimeout,
			ShutdownTimeout: srv.ShutdownTimeout,
		}, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			s.Shutdown(context.Background())
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", srv.HTTPPort),
		zap.Int("metrics_port", srv.MetricsPort),
	)
	return nil
}

// Wait blocks until ctx is done or a listener fails.
func (s *Server) Wait(ctx context.Context) error {
	var metricsErrs <-chan error
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.httpManager.Errors():
		return err
	case err := <-metricsErrs:
		return err
	}
}

// Shutdown stops both listeners gracefully.
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("starting graceful shutdown")
	start := time.Now()

	if s.cancel != nil {
		s.cancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed", zap.Duration("duration", time.Since(start)))
}
