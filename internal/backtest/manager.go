package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/errs"
)

// PriceSource serves the daily frame the point selector runs on.
type PriceSource interface {
	Daily(ctx context.Context, ticker string) (data.Frame, error)
}

// ReportLoader reads the persisted historical reports a completed job wrote.
type ReportLoader interface {
	LoadReports(ctx context.Context, ticker string, timestamps []int64) (map[int64]*report.AnalysisReport, error)
}

// ManagerConfig bounds preparation.
type ManagerConfig struct {
	Concurrency  int           // contexts in PREPARING/POLLING at once [3]
	PollInterval time.Duration // cadence of status checks [45s]
	PollDeadline time.Duration // hard cap per ticker [30m]
	Selector     SelectorConfig
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 45 * time.Second
	}
	if c.PollDeadline <= 0 {
		c.PollDeadline = 30 * time.Minute
	}
	return c
}

// Manager drives backtest preparation for many tickers: select points,
// submit the provider job, poll to completion, load the persisted reports.
// At most Concurrency contexts are in flight; the rest queue on the
// semaphore. State transitions fan out to subscribers.
type Manager struct {
	client Client
	prices PriceSource
	loader ReportLoader
	cfg    ManagerConfig
	sem    *semaphore.Weighted

	mu       sync.Mutex
	contexts map[string]*Context

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewManager wires a manager.
func NewManager(client Client, prices PriceSource, loader ReportLoader, cfg ManagerConfig) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		client:   client,
		prices:   prices,
		loader:   loader,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		contexts: make(map[string]*Context),
		subs:     make(map[int]chan Event),
	}
}

// Context returns the preparation context for a ticker.
func (m *Manager) Context(ticker string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[ticker]
	return c, ok
}

// Contexts returns a stable snapshot of every context, sorted by ticker.
func (m *Manager) Contexts() []*Context {
	m.mu.Lock()
	out := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		out = append(out, c)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Subscribe registers a transition listener. Slow subscribers drop events
// rather than stall preparation. The returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 64)
	m.subs[id] = ch
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		if ch, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
		m.subMu.Unlock()
	}
}

func (m *Manager) publish(ev Event) {
	m.subMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	m.subMu.Unlock()
}

// ensureContext returns the live context for a ticker, replacing a FAILED
// one so PrepareAll can retry after fixes upstream.
func (m *Manager) ensureContext(ticker string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contexts[ticker]; ok {
		if c.State() != StateFailed {
			return c, false
		}
	}
	c := newContext(ticker)
	m.contexts[ticker] = c
	return c, true
}

// PrepareAll drives preparation for every ticker. Each ticker runs to its
// terminal state; one ticker's failure never cancels its siblings. The
// returned error aggregates the tickers that ended FAILED.
func (m *Manager) PrepareAll(ctx context.Context, tickers []string) error {
	var wg sync.WaitGroup
	for _, ticker := range tickers {
		ticker := ticker
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Prepare(ctx, ticker)
		}()
	}
	wg.Wait()

	var failed []string
	for _, ticker := range tickers {
		if c, ok := m.Context(ticker); ok && c.State() == StateFailed {
			failed = append(failed, ticker)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("backtest preparation failed for %d of %d tickers: %v", len(failed), len(tickers), failed)
	}
	return nil
}

// Prepare runs one ticker to a terminal state and returns its context.
// Already prepared or in-flight tickers are returned as is.
func (m *Manager) Prepare(ctx context.Context, ticker string) *Context {
	c, fresh := m.ensureContext(ticker)
	if !fresh {
		return c
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.publish(c.fail(err))
		return c
	}
	defer m.sem.Release(1)

	m.run(ctx, c)
	return c
}

func (m *Manager) run(ctx context.Context, c *Context) {
	m.publish(c.transition(StatePreparing))
	log.Info().Str("ticker", c.Ticker).Msg("Backtest preparation started")

	frame, err := m.prices.Daily(ctx, c.Ticker)
	if err != nil {
		m.failContext(c, fmt.Errorf("fetch OHLCV: %w", err))
		return
	}
	points := SelectPoints(frame, m.cfg.Selector)
	if len(points) == 0 {
		m.failContext(c, errs.NoData("no selectable backtest points for %s", c.Ticker))
		return
	}
	c.setPoints(points)

	ref, err := m.client.Generate(ctx, c.Ticker, points)
	if err != nil {
		m.failContext(c, err)
		return
	}
	c.setJob(ref.JobID)
	m.publish(c.transition(StatePolling))
	log.Info().Str("ticker", c.Ticker).Str("job_id", ref.JobID).
		Int("points", len(points)).Msg("Backtest job submitted, polling")

	status, err := m.poll(ctx, c)
	if err != nil {
		m.failContext(c, err)
		return
	}
	if status == StatusFailed {
		m.failContext(c, errs.BacktestUpstream(fmt.Errorf("job %s reported FAILED", c.JobID())))
		return
	}

	reports, err := m.loader.LoadReports(ctx, c.Ticker, points)
	if err != nil {
		m.failContext(c, fmt.Errorf("load historical reports: %w", err))
		return
	}
	m.publish(c.complete(reports))
	log.Info().Str("ticker", c.Ticker).Int("reports", len(reports)).
		Msg("Backtest context ready")
}

// poll checks the job until it settles. Transient check errors are logged
// and retried on the next tick; only the deadline or a terminal status ends
// the loop.
func (m *Manager) poll(ctx context.Context, c *Context) (JobStatus, error) {
	deadline := time.NewTimer(m.cfg.PollDeadline)
	defer deadline.Stop()
	tick := time.NewTicker(m.cfg.PollInterval)
	defer tick.Stop()

	check := func() (JobStatus, bool) {
		status, err := m.client.Check(ctx, c.JobID())
		if err != nil {
			log.Warn().Err(err).Str("ticker", c.Ticker).Str("job_id", c.JobID()).
				Msg("Backtest status check failed, will retry")
			return "", false
		}
		return status, status == StatusCompleted || status == StatusFailed
	}

	// First check right after submission so fast jobs settle without
	// waiting out a full interval.
	if status, done := check(); done {
		return status, nil
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("job %s did not settle within %s", c.JobID(), m.cfg.PollDeadline)
		case <-tick.C:
			if status, done := check(); done {
				return status, nil
			}
		}
	}
}

func (m *Manager) failContext(c *Context, err error) {
	log.Error().Err(err).Str("ticker", c.Ticker).Msg("Backtest preparation failed")
	m.publish(c.fail(err))
}
