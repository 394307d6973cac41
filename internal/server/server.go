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

// Package server assembles the application from its configuration:
// storage backend, CA store and factory, certificate registry,
// challenge issuer, OAuth2 service, authenticator and the REST surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jeremyhahn/go-certauth/internal/config"
	"github.com/jeremyhahn/go-certauth/internal/rest"
	"github.com/jeremyhahn/go-certauth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-certauth/pkg/auth"
	"github.com/jeremyhahn/go-certauth/pkg/ca"
	"github.com/jeremyhahn/go-certauth/pkg/oauth2"
	"github.com/jeremyhahn/go-certauth/pkg/registry"
	"github.com/jeremyhahn/go-certauth/pkg/storage"
	"github.com/jeremyhahn/go-certauth/pkg/storage/file"
	"github.com/jeremyhahn/go-certauth/pkg/storage/memory"
)

// Server is the assembled application.
type Server struct {
	cfg      *config.Config
	backend  storage.Backend
	store    *ca.Store
	factory  *ca.Factory
	registry *registry.Registry
	oauth2   *oauth2.Service
	rest     *rest.Server
	logger   logger.Logger
}

// New wires up all components from the configuration.
func New(cfg *config.Config, version string) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: config is required")
	}

	log := newLogger(&cfg.Logging)

	backend, err := newBackend(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	store, err := ca.NewStore(&ca.StoreConfig{
		Backend:     backend,
		KeyPassword: []byte(cfg.CA.KeyPassword),
	})
	if err != nil {
		return nil, err
	}

	var factoryOpts []ca.Option
	if cfg.CA.ModernPKCS12 {
		factoryOpts = append(factoryOpts, ca.WithModernPKCS12())
	}
	factory := ca.NewFactory(factoryOpts...)

	reg, err := registry.New(backend)
	if err != nil {
		return nil, err
	}

	clients := make([]*oauth2.Client, 0, len(cfg.OAuth2.Clients))
	for _, client := range cfg.OAuth2.Clients {
		clients = append(clients, &oauth2.Client{
			ID:           client.ID,
			Secret:       client.Secret,
			RedirectURIs: client.RedirectURIs,
			Public:       client.Public,
		})
	}

	oauth2Service, err := oauth2.NewService(&oauth2.Config{
		Issuer:          cfg.OAuth2.Issuer,
		SigningSecret:   []byte(cfg.OAuth2.SigningSecret),
		Clients:         clients,
		CodeTTL:         cfg.OAuth2.CodeTTL,
		AccessTokenTTL:  cfg.OAuth2.AccessTokenTTL,
		RefreshTokenTTL: cfg.OAuth2.RefreshTokenTTL,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	challenges := auth.NewChallengeIssuer(&auth.ChallengeIssuerConfig{
		TTL: cfg.Auth.ChallengeTTL,
	})

	authenticator, err := auth.NewAuthenticator(&auth.AuthenticatorConfig{
		Challenges: challenges,
		Registry:   reg,
		OAuth2:     oauth2Service,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	handlers, err := rest.NewHandlerContext(&rest.HandlerConfig{
		Version:       version,
		Factory:       factory,
		Store:         store,
		Registry:      reg,
		Challenges:    challenges,
		Authenticator: authenticator,
		OAuth2:        oauth2Service,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	restServer, err := rest.NewServer(&rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Handlers:       handlers,
		AllowedOrigins: cfg.Handshake.AllowedOrigins,
		MetricsEnabled: cfg.Metrics.Enabled,
		Logger:         log,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		backend:  backend,
		store:    store,
		factory:  factory,
		registry: reg,
		oauth2:   oauth2Service,
		rest:     restServer,
		logger:   log,
	}, nil
}

// Start runs the REST server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.rest.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.rest.Stop(shutdownCtx); err != nil {
		return err
	}

	return s.backend.Close()
}

// Store returns the CA store, for bootstrap tooling.
func (s *Server) Store() *ca.Store {
	return s.store
}

// Factory returns the certificate factory, for bootstrap tooling.
func (s *Server) Factory() *ca.Factory {
	return s.factory
}

// Registry returns the certificate registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// newBackend creates the configured storage backend.
func newBackend(cfg *config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "file", "":
		return file.New(cfg.Path)
	default:
		return nil, fmt.Errorf("server: unknown storage backend %q", cfg.Backend)
	}
}

// newLogger builds the logging adapter from configuration.
func newLogger(cfg *config.LoggingConfig) logger.Logger {
	level := logger.LevelInfo
	slogLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level, slogLevel = logger.LevelDebug, slog.LevelDebug
	case "warn":
		level, slogLevel = logger.LevelWarn, slog.LevelWarn
	case "error":
		level, slogLevel = logger.LevelError, slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return logger.NewSlogAdapter(&logger.SlogConfig{
		Level:   level,
		Handler: handler,
	})
}
