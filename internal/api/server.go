// Package api exposes the engine over HTTP: workflow definitions, trigger
// and event ingestion, sweeps, run inspection and a per-run event stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/lendflow/internal/engine"
	"github.com/rendis/lendflow/internal/logging"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/internal/validation"
	"github.com/rendis/lendflow/pkg/schema"
)

const (
	maxBodyBytes   = 1 << 20
	defaultLimit   = 50
	requestTimeout = 60 * time.Second
)

// Runner starts runs. Satisfied by *engine.Executor.
type Runner interface {
	Execute(ctx context.Context, req schema.TriggerRequest) (string, error)
	HandleEvent(ctx context.Context, event schema.TriggerEvent) ([]string, error)
}

// Sweeper runs one sweep. Satisfied by *engine.Sweeper.
type Sweeper interface {
	Sweep(ctx context.Context) (*schema.SweepSummary, error)
}

// Deps holds the dependencies for the API server.
type Deps struct {
	Store    store.Store
	Catalog  *engine.Catalog
	Ledger   *engine.Ledger
	Runner   Runner
	Sweeper  Sweeper
	Hub      streaming.EventHub
	Gatherer prometheus.Gatherer // nil = prometheus.DefaultGatherer
	Logger   *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	deps     Deps
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		deps:     deps,
		validate: validation.NewRequestValidator(),
		logger:   logging.WithModule(deps.Logger, "api"),
	}
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		// The event stream is long-lived; everything else is bounded.
		r.Get("/runs/{id}/events", s.handleRunEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Post("/workflows", s.handleDefineWorkflow)
			r.Get("/workflows", s.handleListWorkflows)
			r.Get("/workflows/{id}", s.handleGetWorkflow)
			r.Patch("/workflows/{id}/active", s.handleSetActive)
			r.Get("/workflows/{id}/diagram", s.handleWorkflowDiagram)

			r.Post("/triggers", s.handleTrigger)
			r.Post("/events", s.handleEvent)
			r.Post("/sweep", s.handleSweep)

			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Get("/scheduled-actions", s.handleListScheduled)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
