package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/livewatch/internal/domain/model"
)

const maxDecisionBody = 64 << 10

// DecisionHandler records and reads recruiter decisions.
type DecisionHandler struct {
	deps Dependencies
}

func NewDecisionHandler(deps Dependencies) *DecisionHandler {
	return &DecisionHandler{deps: deps}
}

// decisionRequest mirrors the OpenAPI schema for PUT /decisions/{id}.
type decisionRequest struct {
	Decision          string  `json:"decision"`
	CandidateName     string  `json:"candidate_name"`
	CandidateEmail    string  `json:"candidate_email"`
	CandidatePosition string  `json:"candidate_position"`
	Score             float64 `json:"score"`
}

// HandlePut handles PUT /decisions/{id}.
func (h *DecisionHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_decision"
	id := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDecisionBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	d, err := model.ParseDecision(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	rec, err := h.deps.RecordDecision(r.Context(), id, d, model.DecisionContext{
		CandidateName:     req.CandidateName,
		CandidateEmail:    req.CandidateEmail,
		CandidatePosition: req.CandidatePosition,
		Score:             req.Score,
	})
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleGet handles GET /decisions/{id}.
func (h *DecisionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_decision"
	rec, err := h.deps.Decision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleList handles GET /decisions.
func (h *DecisionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_decisions"
	recs, err := h.deps.Decisions(r.Context())
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	if recs == nil {
		recs = []model.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": recs})
}
