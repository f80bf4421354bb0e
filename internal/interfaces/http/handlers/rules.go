package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/explain"
	"github.com/stockrun/stockrun/internal/rules"
)

type rulesResponse struct {
	Rules     []rules.Summary `json:"rules"`
	Count     int             `json:"count"`
	Generated time.Time       `json:"generated"`
}

type nodesResponse struct {
	Nodes     []rules.Spec `json:"nodes"`
	Count     int          `json:"count"`
	Generated time.Time    `json:"generated"`
}

// ListRules handles GET /v1/rules. An optional purpose query narrows the
// listing to one advisory dimension.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	var (
		list []*rules.Rule
		err  error
	)
	if raw := r.URL.Query().Get("purpose"); raw != "" {
		purpose, perr := semantic.ParsePurpose(raw)
		if perr != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", perr.Error())
			return
		}
		list, err = h.deps.Library.RulesByPurpose(r.Context(), purpose)
	} else {
		list, err = h.deps.Library.All(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	summaries := make([]rules.Summary, 0, len(list))
	for _, rule := range list {
		summaries = append(summaries, rule.Summarize())
	}
	h.writeJSON(w, http.StatusOK, rulesResponse{
		Rules:     summaries,
		Count:     len(summaries),
		Generated: time.Now().UTC(),
	})
}

// ListNodes handles GET /v1/rules/nodes. node_type narrows by node shape,
// purpose by the semantic type rules of that purpose must return.
func (h *Handlers) ListNodes(w http.ResponseWriter, r *http.Request) {
	var filter rules.ListFilter

	if raw := r.URL.Query().Get("node_type"); raw != "" {
		switch kind := rules.NodeKind(raw); kind {
		case rules.KindConstant, rules.KindVariable, rules.KindOperator:
			filter.Kind = kind
		default:
			h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", "unknown node type "+raw)
			return
		}
	}
	if raw := r.URL.Query().Get("purpose"); raw != "" {
		purpose, err := semantic.ParsePurpose(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", err.Error())
			return
		}
		filter.ReturnType = purpose.ResultType()
	}

	specs := h.deps.Registry.List(filter)
	h.writeJSON(w, http.StatusOK, nodesResponse{
		Nodes:     specs,
		Count:     len(specs),
		Generated: time.Now().UTC(),
	})
}

// ExplainRule handles GET /v1/rules/{rule_id}/explain with a plain-text
// rendering of the rule and its expression tree.
func (h *Handlers) ExplainRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.deps.Library.Get(r.Context(), mux.Vars(r)["rule_id"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeText(w, http.StatusOK, explain.Rule(rule))
}
