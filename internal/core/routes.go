package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to request contexts when
// the config does not specify one.
const defaultRequestTimeout = 30 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs. Authorization carries the cron secret.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes defines the top-level routing hierarchy: global middleware,
// the /v1 admin API, the /cron trigger group, and the health check.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Route("/cron", func(r chi.Router) {
		r.Use(s.CronAuthMiddleware)
		for _, registrar := range s.CronRouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order:
//
//  1. Recoverer       - outermost, catches all panics
//  2. ContextTimeout  - soft deadline before upstream timeouts fire
//  3. RequestID       - correlation ID for tracing
//  4. SecurityHeaders - present on every response
//  5. RequestLogger   - structured logging with redacted headers
//  6. Metrics         - latency and count recording
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(s.MetricsMiddleware)
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}
