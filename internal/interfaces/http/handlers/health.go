package handlers

import (
	"net/http"
	"time"
)

// componentHealth is one dependency's slice of the health report.
type componentHealth struct {
	Status  string      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string                     `json:"status"`
	Ready         bool                       `json:"ready"`
	WarmupErrors  []string                   `json:"warmup_errors,omitempty"`
	Components    map[string]componentHealth `json:"components"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     time.Time                  `json:"timestamp"`
}

// Health handles GET /health. It never returns an error status code: the
// body carries the degraded details so probes can alert without flapping
// the listener itself.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	resp := healthResponse{
		Status:        "healthy",
		Ready:         h.deps.Orchestrator.Ready(),
		Components:    make(map[string]componentHealth),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     time.Now().UTC(),
	}

	if !resp.Ready {
		resp.Status = "warming_up"
		resp.WarmupErrors = h.deps.Orchestrator.Warmup().Failures()
	}

	if h.deps.Health.DB != nil {
		check := h.deps.Health.DB.Health(ctx)
		db := componentHealth{Status: "healthy", Details: check}
		if !check.Healthy {
			db.Status = "unhealthy"
			resp.Status = "degraded"
		}
		resp.Components["database"] = db
	} else {
		resp.Components["database"] = componentHealth{Status: "disabled"}
	}

	if h.deps.Health.Cache != nil {
		cache := componentHealth{Status: "healthy"}
		if err := h.deps.Health.Cache.Ping(ctx); err != nil {
			cache.Status = "unhealthy"
			cache.Error = err.Error()
			resp.Status = "degraded"
		}
		resp.Components["cache"] = cache
	} else {
		resp.Components["cache"] = componentHealth{Status: "disabled"}
	}

	universe := componentHealth{Status: "healthy", Details: map[string]int{
		"tickers": h.deps.Orchestrator.Meta().Len(),
	}}
	resp.Components["universe"] = universe

	h.writeJSON(w, http.StatusOK, resp)
}
