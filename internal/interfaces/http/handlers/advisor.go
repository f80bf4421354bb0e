package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stockrun/stockrun/internal/advisor"
	"github.com/stockrun/stockrun/internal/explain"
)

// advisorRequest is the body of the advisor endpoints. Weights, when
// present, override the profile's meta weights for this call only.
type advisorRequest struct {
	UserID  string           `json:"user_id"`
	Weights *advisor.Weights `json:"weights,omitempty"`
}

// FullAdvisor handles POST /v1/advisor/{ticker}/full.
func (h *Handlers) FullAdvisor(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.advise(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// ExplainAdvisor handles POST /v1/advisor/{ticker}/explain. Same contract
// as the full endpoint, rendered as plain text.
func (h *Handlers) ExplainAdvisor(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.advise(w, r)
	if !ok {
		return
	}
	h.writeText(w, http.StatusOK, explain.Advisor(rep))
}

// advise runs the shared advisor flow. On failure it writes the response
// itself and reports !ok.
func (h *Handlers) advise(w http.ResponseWriter, r *http.Request) (*advisor.Report, bool) {
	if !h.gate(w, r) {
		return nil, false
	}
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])

	var req advisorRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return nil, false
	}

	rep, err := h.deps.Orchestrator.FullAdvisor(r.Context(), ticker, req.UserID, req.Weights)
	if err != nil {
		h.writeDomainError(w, r, err)
		return nil, false
	}
	return rep, true
}
