// Package httpserver provides the HTTP trigger API: it registers case
// videos, starts background processing for a case and exposes workflow
// status and control endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/vehicle-tracking-service/internal/domain"
	"github.com/helixir/vehicle-tracking-service/internal/events"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
	"github.com/helixir/vehicle-tracking-service/internal/repository"
	"github.com/helixir/vehicle-tracking-service/internal/temporal"
)

// WorkflowClient defines the orchestration operations used by the HTTP server.
// *temporal.Orchestrator satisfies it.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, job domain.JobDescriptor, opts ...temporal.StartOption) (*domain.JobResult, error)
	GetExecution(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error)
	CancelWorkflow(ctx context.Context, workflowID, reason string) error
	TerminateWorkflow(ctx context.Context, workflowID, reason string) error
	Health(ctx context.Context) error
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	workflows  WorkflowClient
	cases      repository.CaseRepository
	runner     *BackgroundRunner
	limiter    *ratelimit.Limiter
	metrics    *observability.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new HTTP server with all dependencies. sink receives
// the result of every background job; limiter bounds processing triggers
// and may be nil.
func NewServer(
	cfg Config,
	workflows WorkflowClient,
	cases repository.CaseRepository,
	sink events.ResultSink,
	limiter *ratelimit.Limiter,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	if sink == nil {
		sink = events.NopSink{}
	}
	s := &Server{
		workflows: workflows,
		cases:     cases,
		limiter:   limiter,
		metrics:   metrics,
		logger:    observability.WithComponent(logger, "http-server"),
		now:       time.Now,
	}
	s.runner = NewBackgroundRunner(workflows, cases, sink, metrics, logger)
	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cases/{caseID}", func(r chi.Router) {
			r.Use(caseContextMiddleware)

			r.Put("/", s.registerCase)
			r.Get("/", s.getCase)
			r.With(rateLimitMiddleware(s.limiter, s.metrics)).Post("/process", s.processCase)
		})
		r.Route("/workflows/{workflowID}", func(r chi.Router) {
			r.Get("/", s.getWorkflow)
			r.Post("/cancel", s.cancelWorkflow)
			r.Post("/terminate", s.terminateWorkflow)
		})
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests, then waits for background jobs to
// persist their results until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.httpServer.Shutdown(ctx)
	runnerErr := s.runner.Shutdown(ctx)
	return errors.Join(httpErr, runnerErr)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the orchestration server is reachable.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.Health(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"temporal": "unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"temporal": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
