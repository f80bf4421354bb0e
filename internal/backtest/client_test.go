package backtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/analysis/forecast"
	"github.com/stockrun/stockrun/internal/analysis/technical"
	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/errs"
	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/persistence"
)

func TestLocalClientGenerateAndCheck(t *testing.T) {
	sink := &memorySink{}
	svc, frame := serviceFixture(t, sink)
	client := NewLocalClient(svc)

	ref, err := client.Generate(context.Background(), "AAPL", []int64{frame.Bars[280].TS})
	require.NoError(t, err)
	require.NotEmpty(t, ref.JobID)
	assert.Equal(t, StatusRunning, ref.Status)

	require.Eventually(t, func() bool {
		status, err := client.Check(context.Background(), ref.JobID)
		return err == nil && status == StatusCompleted
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, sink.count())
}

func TestLocalClientConflictSurfaces(t *testing.T) {
	sink := &memorySink{gate: make(chan struct{})}
	svc, frame := serviceFixture(t, sink)
	client := NewLocalClient(svc)

	ref, err := client.Generate(context.Background(), "AAPL", []int64{frame.Bars[280].TS})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "AAPL", []int64{frame.Bars[290].TS})
	require.ErrorIs(t, err, ErrJobRunning)

	close(sink.gate)
	waitStatus(t, svc, ref.JobID, StatusCompleted)
}

func TestLocalClientUnknownJob(t *testing.T) {
	svc, _ := serviceFixture(t, &memorySink{})
	client := NewLocalClient(svc)

	_, err := client.Check(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindBacktestUpstream))
	assert.Contains(t, err.Error(), "unknown job")
}

func TestHTTPClientConflictMapsToJobRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL})

	// Both clients signal a duplicate job the same way.
	_, err := client.Generate(context.Background(), "AAPL", []int64{1000})
	require.ErrorIs(t, err, ErrJobRunning)
	assert.False(t, errs.IsKind(err, errs.KindBacktestUpstream))
}

func TestHTTPClientGenerateAndCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/backtest/generate":
			json.NewEncoder(w).Encode(JobRef{JobID: "job-1", Status: StatusRunning})
		case "/backtest/check/job-1":
			json.NewEncoder(w).Encode(JobRef{JobID: "job-1", Status: StatusCompleted})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL})

	ref, err := client.Generate(context.Background(), "AAPL", []int64{1000, 2000})
	require.NoError(t, err)
	assert.Equal(t, "job-1", ref.JobID)

	status, err := client.Check(context.Background(), ref.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	_, err = client.Check(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindBacktestUpstream))
}

// The manager's submit/poll/load loop runs unchanged against the in-process
// service: points come out of the selector, the job writes reports into the
// store, and the context settles READY with those reports attached.
func TestManagerWithLocalService(t *testing.T) {
	reports := persistence.NewMemoryReports()
	meta, err := data.LoadMetadata(context.Background(), &data.SyntheticUniverse{})
	require.NoError(t, err)
	prices := testPrices()
	frame, err := prices.Daily(context.Background(), "AAPL")
	require.NoError(t, err)

	store := models.NewSyntheticStore(forecast.CanonicalFeatures, []int64{frame.Bars[0].TS})
	builder := NewHistoryBuilder(
		meta,
		prices,
		technical.New(technical.Config{}),
		forecast.New(store, models.NewCache(), nil),
		reports,
	)
	svc := NewService(builder)
	t.Cleanup(svc.Close)

	m := NewManager(NewLocalClient(svc), prices, reports, ManagerConfig{
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
		PollDeadline: 30 * time.Second,
	})

	c := m.Prepare(context.Background(), "AAPL")
	require.Equal(t, StateReady, c.State())
	require.NoError(t, c.Err())

	assert.NotEmpty(t, c.Points())
	assert.Greater(t, c.ReportCount(), 0)
	assert.Equal(t, reports.Count("AAPL"), c.ReportCount())

	last := c.Points()[len(c.Points())-1]
	rep, ok := c.ReportAt(last)
	require.True(t, ok)
	assert.Equal(t, "AAPL", rep.Ticker)
	assert.Equal(t, last, rep.GeneratedTS)
	assert.NotEmpty(t, rep.Forecasting)
}
