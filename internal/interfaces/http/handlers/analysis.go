package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stockrun/stockrun/internal/application"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/explain"
)

// FullAnalysis handles GET /v1/analysis/{ticker}/full.
// Query: profile=short|medium|long (default medium), scope=daily|intraday|all
// (default all).
func (h *Handlers) FullAnalysis(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w, r) {
		return
	}
	ticker, horizon, scope, ok := h.analysisParams(w, r)
	if !ok {
		return
	}

	rep, err := h.deps.Orchestrator.FullAnalysis(r.Context(), ticker, horizon, scope)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// ModuleAnalysis handles GET /v1/analysis/{ticker}/{module}. The report is
// still assembled whole, all modules or nothing, and the response projects
// the requested section.
func (h *Handlers) ModuleAnalysis(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w, r) {
		return
	}
	ticker, horizon, scope, ok := h.analysisParams(w, r)
	if !ok {
		return
	}
	module := mux.Vars(r)["module"]

	rep, err := h.deps.Orchestrator.FullAnalysis(r.Context(), ticker, horizon, scope)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	body := map[string]interface{}{
		"ticker":       rep.Ticker,
		"generated_at": rep.GeneratedAt,
		"generated_ts": rep.GeneratedTS,
	}
	switch module {
	case "technical":
		body["technical"] = rep.Technical
	case "forecasting":
		body["forecasting"] = rep.Forecasting
	case "news":
		body["news"] = rep.News
	default:
		// The route pattern restricts the variable; this arm is unreachable
		// through the router.
		h.writeError(w, r, http.StatusNotFound, "unknown_module", "unknown analysis module "+module)
		return
	}
	h.writeJSON(w, http.StatusOK, body)
}

// ExplainAnalysis handles GET /v1/analysis/{ticker}/explain. Query:
// kind=technical|forecasting|news|all (default all) plus the usual profile
// and scope. The response is plain text.
func (h *Handlers) ExplainAnalysis(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w, r) {
		return
	}
	ticker, horizon, scope, ok := h.analysisParams(w, r)
	if !ok {
		return
	}
	kind := r.URL.Query().Get("kind")

	rep, err := h.deps.Orchestrator.FullAnalysis(r.Context(), ticker, horizon, scope)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	text, err := explain.Report(rep, kind)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	h.writeText(w, http.StatusOK, text)
}

// analysisParams pulls the ticker path variable and the shared profile and
// scope query parameters. On a bad parameter it writes the 400 itself.
func (h *Handlers) analysisParams(w http.ResponseWriter, r *http.Request) (string, application.Horizon, report.Scope, bool) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])

	horizon, err := application.ParseHorizon(r.URL.Query().Get("profile"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
		return "", "", "", false
	}
	scope, err := application.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
		return "", "", "", false
	}
	return ticker, horizon, scope, true
}
