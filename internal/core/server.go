// Package core provides the API chassis for the DuePoint service. It creates
// a chi router and enforces cross-cutting concerns -- logging, request
// correlation, timeouts, and error handling -- before requests reach
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"duepoint/internal/config"
)

// RouteRegistrar mounts a group of domain routes on the v1 router. Handlers
// register themselves through this indirection to avoid import cycles between
// core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the HTTP dependencies for the DuePoint API, allowing
// for easy injection during testing and distinct configuration per
// environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// V1RouteRegistrars are populated by the application entry point before
	// MountRoutes is called.
	V1RouteRegistrars []RouteRegistrar

	// HealthProbes are checked by the /health endpoint.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. The caller is responsible for mounting routes
// (via MountRoutes) after construction; this separation allows tests to
// customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the /v1 API group, and the health endpoint.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order:
//
//  1. Recoverer       - catches panics; outermost to catch all failures.
//  2. ContextTimeout  - soft deadline on every request context.
//  3. RequestID       - generates/propagates correlation ID.
//  4. RequestLogger   - structured request logging.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))
}

// requestTimeout returns the configured request timeout, falling back to a
// safe default when the config does not specify one.
func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return 29 * time.Second
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	_ = ctx
	s.Logger.Info("server shutdown complete")
	return nil
}
