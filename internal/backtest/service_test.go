package backtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/analysis/forecast"
	"github.com/stockrun/stockrun/internal/analysis/technical"
	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/models"
)

type memorySink struct {
	mu      sync.Mutex
	reports []*report.AnalysisReport
	gate    chan struct{}
}

func (s *memorySink) SaveReport(_ context.Context, rep *report.AnalysisReport) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.reports = append(s.reports, rep)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func (s *memorySink) all() []*report.AnalysisReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*report.AnalysisReport, len(s.reports))
	copy(out, s.reports)
	return out
}

func serviceFixture(t *testing.T, sink *memorySink) (*Service, data.Frame) {
	t.Helper()

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
		sink,
	)
	svc := NewService(builder)
	t.Cleanup(svc.Close)
	return svc, frame
}

func waitStatus(t *testing.T, svc *Service, id string, want JobStatus) *Job {
	t.Helper()
	var got *Job
	require.Eventually(t, func() bool {
		j, ok := svc.Job(id)
		if !ok {
			return false
		}
		got = j
		return j.Status == want
	}, 10*time.Second, 10*time.Millisecond, "job never reached %s", want)
	return got
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	sink := &memorySink{}
	svc, frame := serviceFixture(t, sink)

	points := []int64{frame.Bars[250].TS, frame.Bars[270].TS, frame.Bars[290].TS}
	job, err := svc.Submit("AAPL", points)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, job.Status)

	done := waitStatus(t, svc, job.ID, StatusCompleted)
	assert.Equal(t, 3, done.Stored)
	assert.Equal(t, 3, done.Requested)
	assert.Empty(t, done.Error)
	assert.False(t, done.FinishedAt.IsZero())

	require.Equal(t, 3, sink.count())
	for i, rep := range sink.all() {
		assert.Equal(t, "AAPL", rep.Ticker)
		assert.Equal(t, points[i], rep.GeneratedAt.Unix())
		require.NotNil(t, rep.Technical)
		assert.NotNil(t, rep.Technical.Daily)
		assert.Nil(t, rep.Technical.Intraday)
		assert.Len(t, rep.Forecasting, 3)
		assert.Nil(t, rep.News)
	}
}

func TestSubmitConflictWhileRunning(t *testing.T) {
	sink := &memorySink{gate: make(chan struct{})}
	svc, frame := serviceFixture(t, sink)

	first, err := svc.Submit("AAPL", []int64{frame.Bars[280].TS})
	require.NoError(t, err)

	_, err = svc.Submit("AAPL", []int64{frame.Bars[290].TS})
	require.ErrorIs(t, err, ErrJobRunning)

	close(sink.gate)
	waitStatus(t, svc, first.ID, StatusCompleted)

	// A settled ticker accepts new work.
	second, err := svc.Submit("AAPL", []int64{frame.Bars[290].TS})
	require.NoError(t, err)
	waitStatus(t, svc, second.ID, StatusCompleted)
}

func TestSubmitUnknownTickerFailsJob(t *testing.T) {
	sink := &memorySink{}
	svc, frame := serviceFixture(t, sink)

	job, err := svc.Submit("ZZZZ", []int64{frame.Bars[280].TS})
	require.NoError(t, err)

	failed := waitStatus(t, svc, job.ID, StatusFailed)
	assert.Contains(t, failed.Error, "unknown ticker")
	assert.Zero(t, sink.count())
}

func TestSubmitRejectsEmptyTimestamps(t *testing.T) {
	svc, _ := serviceFixture(t, &memorySink{})

	_, err := svc.Submit("AAPL", nil)
	require.Error(t, err)
}

func TestJobUnknownID(t *testing.T) {
	svc, _ := serviceFixture(t, &memorySink{})

	_, ok := svc.Job("nope")
	assert.False(t, ok)
}
