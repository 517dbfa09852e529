package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/livewatch/internal/app"
	"github.com/okian/livewatch/internal/app/selection"
	"github.com/okian/livewatch/internal/domain/model"
)

// SessionHandler drives the two-step delete of a session.
type SessionHandler struct {
	deps Dependencies
}

func NewSessionHandler(deps Dependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

type deleteStateResponse struct {
	SessionID string            `json:"sessionId"`
	State     model.DeleteState `json:"state"`
}

// HandleRequestDelete handles POST /sessions/{id}/delete-request.
func (h *SessionHandler) HandleRequestDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.request_delete"
	id := chi.URLParam(r, "id")
	if err := h.deps.RequestDelete(r.Context(), id); err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, deleteStateResponse{SessionID: id, State: model.DeletePending})
}

// HandleCancelDelete handles DELETE /sessions/{id}/delete-request.
func (h *SessionHandler) HandleCancelDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.cancel_delete"
	id := chi.URLParam(r, "id")
	if err := h.deps.CancelDelete(r.Context(), id); err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, deleteStateResponse{SessionID: id, State: model.DeleteIdle})
}

// HandleConfirmDelete handles POST /sessions/{id}/delete. Delete-state
// conflicts are 409; a failed remote delete is 502.
func (h *SessionHandler) HandleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.confirm_delete"
	id := chi.URLParam(r, "id")
	err := h.deps.ConfirmDelete(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case isDeleteStateError(err):
		writeServiceError(w, Wrap(op, err))
	default:
		writeServiceError(w, WrapKind(op, ErrUpstream, err))
	}
}

func isDeleteStateError(err error) bool {
	return errors.Is(err, selection.ErrDeleteNotRequested) ||
		errors.Is(err, selection.ErrDeleteInFlight) ||
		errors.Is(err, selection.ErrEmptySessionID) ||
		errors.Is(err, service.ErrNotStarted)
}
