package backtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/errs"
)

// scriptedClient serves a fixed status sequence per ticker; the final
// status repeats once the script runs out.
type scriptedClient struct {
	mu        sync.Mutex
	script    []JobStatus
	checkErrs int
	genErr    map[string]error
	generated map[string]int
	checks    int

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newScriptedClient(script ...JobStatus) *scriptedClient {
	return &scriptedClient{
		script:    script,
		genErr:    map[string]error{},
		generated: map[string]int{},
	}
}

func (c *scriptedClient) Generate(_ context.Context, ticker string, _ []int64) (JobRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generated[ticker]++
	if err := c.genErr[ticker]; err != nil {
		return JobRef{}, err
	}

	cur := c.inflight.Add(1)
	for {
		max := c.maxInflight.Load()
		if cur <= max || c.maxInflight.CompareAndSwap(max, cur) {
			break
		}
	}
	return JobRef{JobID: "job-" + ticker, Status: StatusRunning}, nil
}

func (c *scriptedClient) Check(_ context.Context, _ string) (JobStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkErrs > 0 {
		c.checkErrs--
		return "", errs.BacktestUpstream(errors.New("connection reset"))
	}
	status := c.script[len(c.script)-1]
	if c.checks < len(c.script) {
		status = c.script[c.checks]
	}
	c.checks++
	if status == StatusCompleted || status == StatusFailed {
		c.inflight.Add(-1)
	}
	return status, nil
}

type echoLoader struct{ calls atomic.Int32 }

func (l *echoLoader) LoadReports(_ context.Context, ticker string, ts []int64) (map[int64]*report.AnalysisReport, error) {
	l.calls.Add(1)
	out := make(map[int64]*report.AnalysisReport, len(ts))
	for _, t := range ts {
		out[t] = report.New(ticker, time.Unix(t, 0).UTC())
	}
	return out, nil
}

func testPrices() *data.Preparer {
	prices := &data.SyntheticPrices{Days: 300, Intraday: 10, Volatility: 0.02,
		End: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)}
	return data.NewPreparer(prices, data.NewMemoryCache(), time.Minute)
}

func fastConfig() ManagerConfig {
	return ManagerConfig{
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
		PollDeadline: 2 * time.Second,
	}
}

func collectEvents(ch <-chan Event, until State) []Event {
	var out []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
			if ev.State == until {
				return out
			}
		case <-deadline:
			return out
		}
	}
}

func TestPrepareLifecycle(t *testing.T) {
	client := newScriptedClient(StatusRunning, StatusRunning, StatusCompleted)
	loader := &echoLoader{}
	m := NewManager(client, testPrices(), loader, fastConfig())

	events, cancel := m.Subscribe()
	defer cancel()

	c := m.Prepare(context.Background(), "AAPL")

	select {
	case <-c.DataReady():
	case <-time.After(5 * time.Second):
		t.Fatal("data_ready never closed")
	}

	require.Equal(t, StateReady, c.State())
	require.NoError(t, c.Err())
	assert.Equal(t, "job-AAPL", c.JobID())
	assert.NotEmpty(t, c.Points())
	assert.Equal(t, len(c.Points()), c.ReportCount())
	assert.Equal(t, int32(1), loader.calls.Load())

	states := []State{}
	for _, ev := range collectEvents(events, StateReady) {
		states = append(states, ev.State)
	}
	require.Equal(t, []State{StatePreparing, StatePolling, StateReady}, states)
}

func TestPrepareJobReportsFailed(t *testing.T) {
	client := newScriptedClient(StatusFailed)
	m := NewManager(client, testPrices(), &echoLoader{}, fastConfig())

	c := m.Prepare(context.Background(), "MSFT")
	<-c.DataReady()

	require.Equal(t, StateFailed, c.State())
	require.Error(t, c.Err())
	assert.True(t, errs.IsKind(c.Err(), errs.KindBacktestUpstream))
}

func TestPrepareGenerateFailure(t *testing.T) {
	client := newScriptedClient(StatusCompleted)
	client.genErr["NVDA"] = errs.BacktestUpstream(errors.New("409 job already running"))
	m := NewManager(client, testPrices(), &echoLoader{}, fastConfig())

	c := m.Prepare(context.Background(), "NVDA")
	<-c.DataReady()

	require.Equal(t, StateFailed, c.State())
	assert.True(t, errs.IsKind(c.Err(), errs.KindBacktestUpstream))
}

func TestPollDeadlineFailsContext(t *testing.T) {
	client := newScriptedClient(StatusRunning)
	cfg := fastConfig()
	cfg.PollDeadline = 30 * time.Millisecond
	m := NewManager(client, testPrices(), &echoLoader{}, cfg)

	c := m.Prepare(context.Background(), "AAPL")
	<-c.DataReady()

	require.Equal(t, StateFailed, c.State())
	assert.Contains(t, c.Err().Error(), "did not settle")
}

func TestPollSurvivesTransientCheckErrors(t *testing.T) {
	client := newScriptedClient(StatusCompleted)
	client.checkErrs = 2
	m := NewManager(client, testPrices(), &echoLoader{}, fastConfig())

	c := m.Prepare(context.Background(), "AAPL")
	<-c.DataReady()

	require.Equal(t, StateReady, c.State())
}

func TestPrepareAllBoundsConcurrency(t *testing.T) {
	client := newScriptedClient(StatusCompleted)
	cfg := fastConfig()
	cfg.Concurrency = 1
	m := NewManager(client, testPrices(), &echoLoader{}, cfg)

	require.NoError(t, m.PrepareAll(context.Background(), []string{"AAPL", "MSFT", "NVDA"}))

	for _, ticker := range []string{"AAPL", "MSFT", "NVDA"} {
		c, ok := m.Context(ticker)
		require.True(t, ok)
		assert.Equal(t, StateReady, c.State())
	}
	assert.LessOrEqual(t, client.maxInflight.Load(), int32(1))
}

func TestPrepareAllAggregatesFailures(t *testing.T) {
	client := newScriptedClient(StatusCompleted)
	client.genErr["XOM"] = errs.BacktestUpstream(errors.New("boom"))
	m := NewManager(client, testPrices(), &echoLoader{}, fastConfig())

	err := m.PrepareAll(context.Background(), []string{"AAPL", "XOM"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XOM")

	good, _ := m.Context("AAPL")
	assert.Equal(t, StateReady, good.State())
	bad, _ := m.Context("XOM")
	assert.Equal(t, StateFailed, bad.State())
}

func TestPrepareIdempotentWhenReady(t *testing.T) {
	client := newScriptedClient(StatusCompleted)
	m := NewManager(client, testPrices(), &echoLoader{}, fastConfig())

	first := m.Prepare(context.Background(), "AAPL")
	<-first.DataReady()
	second := m.Prepare(context.Background(), "AAPL")

	assert.Same(t, first, second)
	assert.Equal(t, 1, client.generated["AAPL"])
}

func TestPrepareRetriesFailedContext(t *testing.T) {
	client := newScriptedClient(StatusCompleted)
	client.genErr["AAPL"] = errs.BacktestUpstream(errors.New("down"))
	m := NewManager(client, testPrices(), &echoLoader{}, fastConfig())

	first := m.Prepare(context.Background(), "AAPL")
	<-first.DataReady()
	require.Equal(t, StateFailed, first.State())

	client.mu.Lock()
	delete(client.genErr, "AAPL")
	client.mu.Unlock()

	second := m.Prepare(context.Background(), "AAPL")
	<-second.DataReady()
	require.Equal(t, StateReady, second.State())
	assert.NotSame(t, first, second)
}

func TestContextsSnapshotSorted(t *testing.T) {
	client := newScriptedClient(StatusCompleted)
	m := NewManager(client, testPrices(), &echoLoader{}, fastConfig())

	require.NoError(t, m.PrepareAll(context.Background(), []string{"MSFT", "AAPL"}))

	cs := m.Contexts()
	require.Len(t, cs, 2)
	assert.Equal(t, "AAPL", cs[0].Ticker)
	assert.Equal(t, "MSFT", cs[1].Ticker)
}
