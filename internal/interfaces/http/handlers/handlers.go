// Package handlers implements the HTTP endpoint handlers. Every response
// body is JSON except the explain endpoints, which render plain text.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/stockrun/stockrun/internal/application"
	"github.com/stockrun/stockrun/internal/backtest"
	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/errs"
	"github.com/stockrun/stockrun/internal/persistence"
	"github.com/stockrun/stockrun/internal/rules"
)

type contextKey string

// RequestIDKey carries the per-request ID through the request context.
const RequestIDKey contextKey = "request_id"

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthSources collects the probes the health endpoint reports on. Nil
// fields report as disabled rather than unhealthy.
type HealthSources struct {
	DB    persistence.RepositoryHealth
	Cache data.Pinger
}

// Deps carries everything the handlers serve from.
type Deps struct {
	Orchestrator *application.Orchestrator
	Library      *rules.Library
	Registry     *rules.Registry
	Jobs         *backtest.Service
	Manager      *backtest.Manager
	Health       HealthSources
}

// Handlers manages all HTTP endpoint handlers.
type Handlers struct {
	deps    Deps
	started time.Time
}

// NewHandlers creates a new handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps, started: time.Now().UTC()}
}

// writeJSON writes a JSON response with proper error handling.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Fallback error response
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

// writeText writes a plain-text response.
func (h *Handlers) writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(text))
}

// writeDomainError maps a service error onto the envelope. The status comes
// from the error kind; joined fan-in errors surface every branch message.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.StatusOf(err)
	code := string(errs.KindOf(err))
	h.writeError(w, r, status, code, err.Error())
}

// writeError writes a standardized error response.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := "unknown"
	if id, ok := r.Context().Value(RequestIDKey).(string); ok {
		requestID = id
	}

	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// gate rejects requests until warm-up has completed.
func (h *Handlers) gate(w http.ResponseWriter, r *http.Request) bool {
	if h.deps.Orchestrator.Ready() {
		return true
	}
	h.writeDomainError(w, r, errs.NotReady())
	return false
}

// decodeBody parses an optional JSON request body into dst. An empty body
// leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NotFound handles 404 responses.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
