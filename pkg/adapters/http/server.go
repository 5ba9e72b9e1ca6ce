// Package http exposes a weft engine as a JSON REST API on chi, with
// server-sent events for run progress and workflow reloads.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/internal/validator"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of weft.Engine the API serves.
type Engine interface {
	ListWorkflows(ctx context.Context) ([]domain.WorkflowMetadata, error)
	Definition(ctx context.Context, name domain.WorkflowName) (*domain.WorkflowDefinition, error)
	Validate(ctx context.Context, name domain.WorkflowName) (*validator.Report, error)
	Start(ctx context.Context, name domain.WorkflowName, vars map[string]any) (*domain.Run, error)
	Continue(ctx context.Context, id string, force bool) (*domain.Run, error)
	Status(ctx context.Context, id string) (*domain.Run, error)
	ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.Run, error)
	Cancel(ctx context.Context, id string) error
	Signal(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	Logs(ctx context.Context, id string, query domain.LogQuery) ([]domain.LogEntry, error)
	Loader() ports.WorkflowLoader
}

// Server holds the handlers of the API.
type Server struct {
	Engine       Engine
	Version      string
	logger       *slog.Logger
	gatherer     prometheus.Gatherer
	pollInterval time.Duration
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics serves the gatherer on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithVersion is reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.Version = strings.TrimSpace(v) }
}

// WithPollInterval sets how often run event streams poll the store.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.pollInterval = d }
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:       engine,
		Version:      "dev",
		logger:       logging.NewNop(),
		pollInterval: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeReloads)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", s.ListWorkflows)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.GetWorkflow)
			r.Get("/graph", s.GetGraph)
			r.Post("/runs", s.StartRun)
		})
	})
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.ListRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetRun)
			r.Delete("/", s.DeleteRun)
			r.Get("/logs", s.GetLogs)
			r.Get("/events", s.SubscribeRun)
			r.Post("/cancel", s.CancelRun)
			r.Post("/signal", s.SignalRun)
			r.Post("/resume", s.ResumeRun)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartRequest is the body of POST /workflows/{name}/runs.
type StartRequest struct {
	Vars map[string]any `json:"vars,omitempty"`
}

// SignalRequest is the body of POST /runs/{id}/signal.
type SignalRequest struct {
	Signal string `json:"signal"`
}

// WorkflowResponse describes a workflow and its analysis.
type WorkflowResponse struct {
	Definition *domain.WorkflowDefinition `json:"definition"`
	Errors     []string                   `json:"errors,omitempty"`
	Warnings   []validator.Warning        `json:"warnings,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"app": "weft-http", "version": s.Version})
}

// ListWorkflows handles GET /workflows.
func (s *Server) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := s.Engine.ListWorkflows(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// GetWorkflow handles GET /workflows/{name}. Structural errors are part of
// the response, not a failure of the request.
func (s *Server) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := domain.WorkflowName(chi.URLParam(r, "name"))
	report, err := s.Engine.Validate(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := WorkflowResponse{Warnings: report.Warnings}
	for _, e := range report.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	if report.OK() {
		def, err := s.Engine.Definition(r.Context(), name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Definition = def
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetGraph handles GET /workflows/{name}/graph and returns mermaid source.
// With ?run=<id> the run's progress is overlaid.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	def, err := s.Engine.Definition(ctx, domain.WorkflowName(chi.URLParam(r, "name")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var overlay *graph.GraphOverlay
	if id := r.URL.Query().Get("run"); id != "" {
		run, err := s.Engine.Status(ctx, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if run.Definition != nil {
			def = run.Definition
		}
		overlay = graph.OverlayFromRun(run)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.RenderDiagram(def, overlay))
}

// StartRun handles POST /workflows/{name}/runs. The run is driven in the
// background; the reply is the created run.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			s.logger.Warn("StartRun: invalid request body", "err", err)
			return
		}
	}
	run, err := s.Engine.Start(r.Context(), domain.WorkflowName(chi.URLParam(r, "name")), body.Vars)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/runs/"+run.ID)
	s.writeJSON(w, http.StatusAccepted, run)
}

// ListRuns handles GET /runs?workflow=&status=&parent=&limit=.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ports.RunFilter{
		Workflow: domain.WorkflowName(q.Get("workflow")),
		ParentID: q.Get("parent"),
	}
	for _, st := range q["status"] {
		for _, v := range strings.Split(st, ",") {
			if v = strings.TrimSpace(v); v != "" {
				filter.Statuses = append(filter.Statuses, domain.RunStatus(v))
			}
		}
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		filter.Limit = n
	}
	runs, err := s.Engine.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Engine.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// DeleteRun handles DELETE /runs/{id}.
func (s *Server) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelRun handles POST /runs/{id}/cancel.
func (s *Server) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Engine.Cancel(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.GetRun(w, r)
}

// SignalRun handles POST /runs/{id}/signal.
func (s *Server) SignalRun(w http.ResponseWriter, r *http.Request) {
	var body SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Signal) == "" {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "body must be {\"signal\": \"<name>\"}"})
		return
	}
	if err := s.Engine.Signal(r.Context(), chi.URLParam(r, "id"), body.Signal); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResumeRun handles POST /runs/{id}/resume?force=true.
func (s *Server) ResumeRun(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	run, err := s.Engine.Continue(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, run)
}

// GetLogs handles GET /runs/{id}/logs?tail=&level=.
func (s *Server) GetLogs(w http.ResponseWriter, r *http.Request) {
	query, err := logQuery(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.Engine.Status(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.Engine.Logs(r.Context(), id, query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func logQuery(r *http.Request) (domain.LogQuery, error) {
	var q domain.LogQuery
	if t := r.URL.Query().Get("tail"); t != "" {
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 {
			return q, errors.New("tail must be a non-negative integer")
		}
		q.Tail = n
	}
	if l := r.URL.Query().Get("level"); l != "" {
		level, err := logging.ParseLevel(l)
		if err != nil {
			return q, err
		}
		q.MinLevel = level
	}
	return q, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidParameters), errors.Is(err, domain.ErrParse), errors.Is(err, domain.ErrGraph):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRunFinished), errors.Is(err, domain.ErrRunActive), errors.Is(err, domain.ErrNonIdempotentResume):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}
