package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ViewHandler serves the live view and focus changes.
type ViewHandler struct {
	deps Dependencies
}

func NewViewHandler(deps Dependencies) *ViewHandler {
	return &ViewHandler{deps: deps}
}

// HandleState handles GET /state.
func (h *ViewHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.State(r.Context()))
}

// HandleSelect handles POST /sessions/{id}/select and answers with the view
// as it stands right after the focus change.
func (h *ViewHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	const op = "api.select"
	id := chi.URLParam(r, "id")
	if err := h.deps.Select(r.Context(), id); err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.State(r.Context()))
}
