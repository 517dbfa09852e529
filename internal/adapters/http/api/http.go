// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/livewatch/internal/adapters/http/swagger"
	service "github.com/okian/livewatch/internal/app"
	"github.com/okian/livewatch/internal/app/decision"
	"github.com/okian/livewatch/internal/app/selection"
	"github.com/okian/livewatch/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// State returns the live view of the focused session.
	State(ctx context.Context) model.LiveViewState
	Select(ctx context.Context, sessionID string) error

	RequestDelete(ctx context.Context, sessionID string) error
	CancelDelete(ctx context.Context, sessionID string) error
	ConfirmDelete(ctx context.Context, sessionID string) error

	RecordDecision(ctx context.Context, sessionID string, d model.Decision, dc model.DecisionContext) (model.DecisionRecord, error)
	Decision(ctx context.Context, sessionID string) (model.DecisionRecord, error)
	Decisions(ctx context.Context) ([]model.DecisionRecord, error)
}

// Server wires HTTP routes for the monitor API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	viewHandler     *ViewHandler
	sessionHandler  *SessionHandler
	decisionHandler *DecisionHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		viewHandler:     NewViewHandler(deps),
		sessionHandler:  NewSessionHandler(deps),
		decisionHandler: NewDecisionHandler(deps),
	}
}

// Router returns the HTTP handler with every route attached.
func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Get("/state", s.viewHandler.HandleState)

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Post("/select", s.viewHandler.HandleSelect)
		r.Post("/delete-request", s.sessionHandler.HandleRequestDelete)
		r.Delete("/delete-request", s.sessionHandler.HandleCancelDelete)
		r.Post("/delete", s.sessionHandler.HandleConfirmDelete)
	})

	r.Get("/decisions", s.decisionHandler.HandleList)
	r.Put("/decisions/{id}", s.decisionHandler.HandlePut)
	r.Get("/decisions/{id}", s.decisionHandler.HandleGet)

	swagger.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps domain errors to status codes. Anything unknown is
// reported as a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, selection.ErrEmptySessionID),
		errors.Is(err, decision.ErrEmptySessionID),
		errors.Is(err, decision.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound), errors.Is(err, service.ErrDecisionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrConflict),
		errors.Is(err, selection.ErrDeleteNotRequested),
		errors.Is(err, selection.ErrDeleteInFlight):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, ErrUnavailable), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_failure", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
