// Package core provides the API chassis for the notification service. It
// owns the chi router, the response envelope, and the cross-cutting
// middleware (panic recovery, request IDs, logging, timeouts, cron
// authentication) applied before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"puppyday/internal/config"
)

// MetricsCollector records API request telemetry. Implementations publish
// latency and count metrics to CloudWatch or equivalent backends.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of domain routes onto a router. Handlers
// register themselves through registrars so core never imports handler
// packages.
type RouteRegistrar func(chi.Router)

// Server bundles the router with its cross-cutting dependencies. Fields are
// exported so the entry point and tests can inject alternatives.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// HealthProbes are checked by GET /health. Empty means the process
	// reports healthy unconditionally.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount the admin API under /v1. CronRouteRegistrars
	// mount the job triggers under /cron, behind cron authentication.
	V1RouteRegistrars   []RouteRegistrar
	CronRouteRegistrars []RouteRegistrar

	// closers run during Shutdown, in registration order.
	closers []func(context.Context) error

	router *chi.Mux
}

// NewServer prepares the server for route mounting. The caller mounts routes
// via MountRoutes after registering handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests and route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser adds a resource teardown function invoked during Shutdown
// (database pools, metric flushers).
func (s *Server) RegisterCloser(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases server resources. The first closer error is returned,
// but all closers run regardless.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, fn := range s.closers {
		if err := fn(ctx); err != nil {
			s.Logger.Error("error during shutdown", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}
