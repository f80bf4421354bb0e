package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  &Error{Kind: KindServiceNotReady},
			want: "SERVICE_NOT_READY",
		},
		{
			name: "kind with module",
			err:  MissingReport("technical_analysis"),
			want: "MISSING_REPORT[technical_analysis]: module produced no report",
		},
		{
			name: "kind with cause",
			err:  BacktestUpstream(errors.New("status 500")),
			want: "BACKTEST_UPSTREAM: backtest provider request failed: status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := BacktestUpstream(cause)

	require.ErrorIs(t, err, cause)
}

func TestErrorsIsMatching(t *testing.T) {
	wrapped := fmt.Errorf("orchestrate: %w", MissingReport("news_analysis"))

	assert.True(t, errors.Is(wrapped, &Error{Kind: KindMissingReport}))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindMissingReport, Module: "news_analysis"}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindMissingReport, Module: "technical_analysis"}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindNoData}))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NoData("ticker %s unknown", "AAPL"), http.StatusNotFound},
		{NotReady(), http.StatusServiceUnavailable},
		{BadVarPath("technical.levels.3", nil), http.StatusBadGateway},
		{BacktestUpstream(errors.New("boom")), http.StatusBadGateway},
		{MissingReport("forecasting"), http.StatusInternalServerError},
		{PreloadFailed([]string{"forecasting"}, nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err))
	}
}

func TestStatusOfUnwrapsChain(t *testing.T) {
	err := fmt.Errorf("handler: %w", NoData("ticker VOO unknown"))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.Equal(t, KindNoData, KindOf(err))
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NoSnapshot("trend_classifier", errors.New("empty history")))

	assert.True(t, IsKind(err, KindNoSnapshot))
	assert.False(t, IsKind(err, KindNoData))
	assert.False(t, IsKind(errors.New("plain"), KindNoSnapshot))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}
