package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the closed set of error codes the service reports to callers.
// Every failure that crosses a package boundary is tagged with one of
// these so handlers can map it to a stable HTTP status and body.
type Kind string

const (
	// KindNoData means a requested entity (ticker, report, rule) does not exist.
	KindNoData Kind = "NO_DATA"
	// KindServiceNotReady means warm-up has not completed yet.
	KindServiceNotReady Kind = "SERVICE_NOT_READY"
	// KindMissingReport means an analysis module that must contribute a
	// report produced none.
	KindMissingReport Kind = "MISSING_REPORT"
	// KindBadVarPath means a rule variable path is syntactically invalid.
	// This is a developer error in the node catalog, never a data error.
	KindBadVarPath Kind = "BAD_VAR_PATH"
	// KindNoSnapshot means a historical model snapshot was requested for a
	// time no artifact covers.
	KindNoSnapshot Kind = "NO_SNAPSHOT"
	// KindBacktestUpstream means the backtest provider rejected or failed a
	// context request.
	KindBacktestUpstream Kind = "BACKTEST_UPSTREAM"
	// KindPreloadFailed means warm-up could not finish for one or more modules.
	KindPreloadFailed Kind = "PRELOAD_FAILED"
	// KindInternal covers everything else.
	KindInternal Kind = "INTERNAL"
)

// Error is the service error type. Module identifies the analysis module or
// subsystem that raised it; Cause carries the wrapped underlying error.
type Error struct {
	Kind    Kind
	Module  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Module != "" {
		fmt.Fprintf(&b, "[%s]", e.Module)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is against sentinel *Error values that carry only a
// Kind, so callers can write errors.Is(err, errs.NotReady()).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Module == "" || t.Module == e.Module
}

// HTTPStatus maps the error kind to the status code handlers should emit.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNoData:
		return http.StatusNotFound
	case KindServiceNotReady:
		return http.StatusServiceUnavailable
	case KindBadVarPath, KindBacktestUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NoData reports a missing entity.
func NoData(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNoData, Message: fmt.Sprintf(format, args...)}
}

// NotReady reports that warm-up has not completed.
func NotReady() *Error {
	return &Error{Kind: KindServiceNotReady, Message: "Service is not ready"}
}

// MissingReport reports that a module contributed no analysis report.
func MissingReport(module string) *Error {
	return &Error{Kind: KindMissingReport, Module: module, Message: "module produced no report"}
}

// BadVarPath reports a syntactically invalid rule variable path.
func BadVarPath(path string, cause error) *Error {
	return &Error{Kind: KindBadVarPath, Message: fmt.Sprintf("invalid variable path %q", path), Cause: cause}
}

// NoSnapshot reports that no model artifact covers the requested time.
func NoSnapshot(model string, cause error) *Error {
	return &Error{Kind: KindNoSnapshot, Module: model, Message: "no snapshot covers requested time", Cause: cause}
}

// BacktestUpstream reports a backtest provider failure.
func BacktestUpstream(cause error) *Error {
	return &Error{Kind: KindBacktestUpstream, Message: "backtest provider request failed", Cause: cause}
}

// PreloadFailed reports warm-up failure for the named modules.
func PreloadFailed(modules []string, cause error) *Error {
	return &Error{
		Kind:    KindPreloadFailed,
		Message: fmt.Sprintf("preload failed for %s", strings.Join(modules, ", ")),
		Cause:   cause,
	}
}

// Internal wraps an unexpected failure.
func Internal(module string, cause error) *Error {
	return &Error{Kind: KindInternal, Module: module, Message: "internal error", Cause: cause}
}

// KindOf extracts the Kind from err, unwrapping as needed. Unknown errors
// report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status for err, unwrapping as needed.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
