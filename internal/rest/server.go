// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-certauth.
//
// go-certauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest exposes the certificate authority, challenge-response
// login and OAuth2 token surfaces over HTTP.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-certauth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-certauth/pkg/handshake"
	"github.com/jeremyhahn/go-certauth/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the REST API server.
type Server struct {
	server   *http.Server
	handlers *HandlerContext
	origins  *handshake.OriginChecker
	port     int
	metrics  bool
	logger   logger.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Host is the listen address (default: all interfaces)
	Host string

	// Port is the HTTP port to listen on (default: 8443)
	Port int

	// Handlers supplies the wired handler context (required)
	Handlers *HandlerContext

	// AllowedOrigins is the cross-window handshake allow-list; it also
	// drives CORS headers
	AllowedOrigins []string

	// MetricsEnabled exposes /metrics when true
	MetricsEnabled bool

	// Logger is the logging adapter (optional)
	Logger logger.Logger

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Handlers == nil {
		return nil, fmt.Errorf("handler context is required")
	}

	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{
			Level: logger.LevelInfo,
		})
	}

	server := &Server{
		handlers: cfg.Handlers,
		origins:  handshake.NewOriginChecker(cfg.AllowedOrigins),
		port:     cfg.Port,
		metrics:  cfg.MetricsEnabled,
		logger:   log,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware(s.origins))

	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)

	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// OAuth2 endpoints live at the conventional root paths
	r.Get("/oauth2/authorize", s.handlers.AuthorizeHandler)
	r.Post("/oauth2/token", s.handlers.TokenHandler)
	r.Post("/oauth2/introspect", s.handlers.IntrospectHandler)
	r.Post("/oauth2/revoke", s.handlers.RevokeHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Certificate endpoints
		r.Post("/certificates", s.handlers.IssueCertificateHandler)
		r.Get("/certificates", s.handlers.ListCertificatesHandler)
		r.Post("/certificates/{serial}/revoke", s.handlers.RevokeCertificateHandler)

		// Challenge-response login endpoints
		r.Post("/auth/challenge", s.handlers.ChallengeHandler)
		r.Post("/auth/login", s.handlers.LoginHandler)

		// Bearer-protected identity endpoint
		r.Get("/userinfo", s.handlers.UserinfoHandler)
	})

	return r
}

// Start starts the REST API server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", logger.Int("port", s.port))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the configured router, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
