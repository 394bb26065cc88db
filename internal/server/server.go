// Package server exposes the job runner and the inspection data over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/runner"
)

type Server struct {
	cfg            *config.Config
	db             *database.DB
	runner         *runner.Runner
	clock          clock.Clock
	version        string
	triggerLimiter *RateLimiter
	httpServer     *http.Server
	router         *Router
}

type Option func(*Server)

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		s.clock = clk
	}
}

func New(cfg *config.Config, db *database.DB, r *runner.Runner, opts ...Option) *Server {
	srv := &Server{
		cfg:     cfg,
		db:      db,
		runner:  r,
		clock:   clock.Real(),
		version: "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	if cfg.Server.TriggerRateLimit.Max > 0 {
		srv.triggerLimiter = NewRateLimiter(cfg.Server.TriggerRateLimit)
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Msg("Starting server")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")

	if s.triggerLimiter != nil {
		s.triggerLimiter.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) DB() *database.DB {
	return s.db
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) Runner() *runner.Runner {
	return s.runner
}
