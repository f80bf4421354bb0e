package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/stockrun/stockrun/internal/backtest"
)

// generateRequest is the body of POST /v1/backtest/generate.
type generateRequest struct {
	Ticker     string  `json:"ticker"`
	Timestamps []int64 `json:"backtest_dates_ts"`
}

// contextView is the serialized form of one preparation context.
type contextView struct {
	Ticker  string         `json:"ticker"`
	State   backtest.State `json:"state"`
	JobID   string         `json:"job_id,omitempty"`
	Points  int            `json:"points"`
	Reports int            `json:"reports"`
	Error   string         `json:"error,omitempty"`
}

type contextsResponse struct {
	Contexts  []contextView `json:"contexts"`
	Count     int           `json:"count"`
	Generated time.Time     `json:"generated"`
}

// GenerateBacktest handles POST /v1/backtest/generate. Accepted jobs come
// back 202 with their id; a ticker with a job still running comes back 409.
func (h *Handlers) GenerateBacktest(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w, r) {
		return
	}

	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	if req.Ticker == "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", "ticker is required")
		return
	}
	if len(req.Timestamps) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", "backtest_dates_ts is required")
		return
	}

	job, err := h.deps.Jobs.Submit(req.Ticker, req.Timestamps)
	if err != nil {
		if errors.Is(err, backtest.ErrJobRunning) {
			h.writeError(w, r, http.StatusConflict, "job_running", err.Error())
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, job)
}

// CheckBacktest handles GET /v1/backtest/check/{job_id}.
func (h *Handlers) CheckBacktest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]
	job, ok := h.deps.Jobs.Job(id)
	if !ok {
		h.writeError(w, r, http.StatusNotFound, "unknown_job", "no job with id "+id)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// BacktestContexts handles GET /v1/backtest/contexts with a snapshot of
// every ticker's preparation state.
func (h *Handlers) BacktestContexts(w http.ResponseWriter, r *http.Request) {
	contexts := h.deps.Manager.Contexts()
	views := make([]contextView, 0, len(contexts))
	for _, c := range contexts {
		v := contextView{
			Ticker:  c.Ticker,
			State:   c.State(),
			JobID:   c.JobID(),
			Points:  len(c.Points()),
			Reports: c.ReportCount(),
		}
		if err := c.Err(); err != nil {
			v.Error = err.Error()
		}
		views = append(views, v)
	}
	h.writeJSON(w, http.StatusOK, contextsResponse{
		Contexts:  views,
		Count:     len(views),
		Generated: time.Now().UTC(),
	})
}
