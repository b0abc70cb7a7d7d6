// Package server assembles the HTTP API: router, middleware chain, and
// lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/inematds/inemavox/internal/errors"
	"github.com/inematds/inemavox/internal/server/handlers"
	"github.com/inematds/inemavox/internal/server/middleware"
	"github.com/inematds/inemavox/pkg/jobs"
)

// Options configures the HTTP server.
type Options struct {
	Host string
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// SubmitRPS and SubmitBurst throttle POST /jobs. Zero values select
	// sensible defaults.
	SubmitRPS   float64
	SubmitBurst int

	Version string
	Logger  *zap.Logger
}

// Server is the assembled HTTP front end over the job manager.
type Server struct {
	opts    Options
	router  chi.Router
	httpSrv *http.Server
	log     *zap.Logger
}

// New wires the router. The manager must already be constructed; the worker
// loop is started separately by the caller.
func New(manager *jobs.Manager, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		// Downloads and long polls need generous write room.
		opts.WriteTimeout = 10 * time.Minute
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 120 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.SubmitRPS <= 0 {
		opts.SubmitRPS = 2
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = 5
	}

	s := &Server{opts: opts, log: opts.Logger}

	jobsHandler := handlers.NewJobsHandler(manager, opts.Logger)
	eventsHandler := handlers.NewEventsHandler(manager, opts.Logger)
	statsHandler := handlers.NewStatsHandler(manager.Stats())
	health := handlers.NewHealthManager(opts.Version)
	health.RegisterChecker("jobs_dir", dirChecker{path: manager.Store().RootDir()})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.Recovery)
	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", health.HealthHandler)
	r.Get("/health/live", health.LivenessHandler)
	r.Get("/version", health.VersionHandler)
	r.Get("/stats", statsHandler.Get)

	r.Route("/jobs", func(r chi.Router) {
		r.With(middleware.SubmitLimiter(opts.SubmitRPS, opts.SubmitBurst)).
			Post("/", jobsHandler.Submit)
		r.Get("/", jobsHandler.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", jobsHandler.Get)
			r.Delete("/", jobsHandler.Delete)
			r.Post("/cancel", jobsHandler.Cancel)
			r.With(middleware.SubmitLimiter(opts.SubmitRPS, opts.SubmitBurst)).
				Post("/resubmit", jobsHandler.Resubmit)
			r.Get("/logs", jobsHandler.Logs)
			r.Get("/download", jobsHandler.Download)
			r.Get("/eta", jobsHandler.ETA)
			r.Get("/events", eventsHandler.Serve)
		})
	})

	s.router = r
	return s
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.opts.Port
}

// Start serves until ctx ends, then shuts down gracefully within the
// configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.Addr()))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down http server")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// dirChecker verifies the jobs directory is present and writable enough to
// stat, catching unmounted volumes before submissions fail.
type dirChecker struct {
	path string
}

func (c dirChecker) CheckHealth(ctx context.Context) error {
	if c.path == "" {
		return fmt.Errorf("jobs dir not configured")
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("stat jobs dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("jobs dir %s is not a directory", c.path)
	}
	return nil
}
