package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/analysis/forecast"
	"github.com/stockrun/stockrun/internal/analysis/technical"
	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/errs"
)

// ErrJobRunning is returned by Submit while a job for the same ticker is
// still RUNNING. Handlers map it to 409.
var ErrJobRunning = errors.New("a backtest job is already running for this ticker")

// ReportSink persists each historical report the builder produces.
type ReportSink interface {
	SaveReport(ctx context.Context, rep *report.AnalysisReport) error
}

// HistoryBuilder turns (ticker, timestamp) pairs into historical analysis
// reports: technical analysis over the truncated frame plus snapshot-correct
// forecasts. News is skipped, article feeds cannot be replayed into the past.
type HistoryBuilder struct {
	meta       *data.Metadata
	prices     PriceSource
	technical  *technical.Analyzer
	forecaster *forecast.Coordinator
	sink       ReportSink
}

// NewHistoryBuilder wires a builder.
func NewHistoryBuilder(meta *data.Metadata, prices PriceSource, ta *technical.Analyzer, fc *forecast.Coordinator, sink ReportSink) *HistoryBuilder {
	return &HistoryBuilder{meta: meta, prices: prices, technical: ta, forecaster: fc, sink: sink}
}

// Build generates and persists one report per requested timestamp. The
// returned count is how many reports were stored; per-timestamp failures
// are skipped so one thin stretch of history cannot sink the whole job.
func (b *HistoryBuilder) Build(ctx context.Context, ticker string, timestamps []int64) (int, error) {
	if len(timestamps) == 0 {
		return 0, errs.NoData("no timestamps requested")
	}
	if !b.meta.Known(ticker) {
		return 0, errs.NoData("unknown ticker %s", ticker)
	}
	sector, _ := b.meta.Sector(ticker)

	frame, err := b.prices.Daily(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("fetch OHLCV: %w", err)
	}
	if frame.Empty() {
		return 0, errs.NoData("no OHLCV history for %s", ticker)
	}

	wanted := make(map[int64]struct{}, len(timestamps))
	minTS := timestamps[0]
	for _, ts := range timestamps {
		wanted[ts] = struct{}{}
		if ts < minTS {
			minTS = ts
		}
	}

	rows := make([]forecast.TimedRow, 0, len(timestamps))
	for _, r := range forecast.BuildFeatureHistory(frame, minTS) {
		if _, ok := wanted[r.TS]; ok {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return 0, errs.NoData("no OHLCV rows match the requested timestamps for %s", ticker)
	}

	history, err := b.forecaster.GenerateHistory(ctx, rows, ticker, sector)
	if err != nil {
		return 0, fmt.Errorf("forecast history: %w", err)
	}

	stored := 0
	for _, entry := range history {
		rep, err := b.buildOne(frame, ticker, entry.TS, entry.Forecasts)
		if err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Int64("ts", entry.TS).
				Msg("Historical report skipped")
			continue
		}
		if err := b.sink.SaveReport(ctx, rep); err != nil {
			return stored, fmt.Errorf("persist report at %d: %w", entry.TS, err)
		}
		stored++
	}
	if stored == 0 {
		return 0, fmt.Errorf("no historical report could be built for %s", ticker)
	}
	return stored, nil
}

func (b *HistoryBuilder) buildOne(frame data.Frame, ticker string, ts int64, forecasts []report.TaskForecast) (*report.AnalysisReport, error) {
	past := frame.Truncate(ts)
	tr, err := b.technical.Analyze(past)
	if err != nil {
		return nil, fmt.Errorf("technical: %w", err)
	}

	rep := report.New(ticker, time.Unix(ts, 0).UTC())
	rep.Technical = &report.TechnicalSection{Ticker: ticker, Daily: tr}
	rep.Forecasting = forecasts
	report.Sweep(rep)
	return rep, nil
}

// Job is one unit of historical-report generation.
type Job struct {
	ID         string    `json:"job_id"`
	Ticker     string    `json:"ticker"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Requested  int       `json:"requested"`
	Stored     int       `json:"stored"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Service runs backtest jobs in-process and serves their status. One job
// per ticker at a time; finished jobs stay queryable until restart.
type Service struct {
	builder *HistoryBuilder

	root   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*Job
	running map[string]string // ticker -> job id
	wg      sync.WaitGroup
}

// NewService wires the local job runner.
func NewService(builder *HistoryBuilder) *Service {
	root, cancel := context.WithCancel(context.Background())
	return &Service{
		builder: builder,
		root:    root,
		cancel:  cancel,
		jobs:    make(map[string]*Job),
		running: make(map[string]string),
	}
}

// Close stops accepting work and waits for in-flight jobs.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Submit starts a job for the ticker. ErrJobRunning is returned while a
// previous job for the same ticker has not settled.
func (s *Service) Submit(ticker string, timestamps []int64) (*Job, error) {
	if len(timestamps) == 0 {
		return nil, errs.NoData("no timestamps requested")
	}
	sorted := make([]int64, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	s.mu.Lock()
	if _, busy := s.running[ticker]; busy {
		s.mu.Unlock()
		return nil, ErrJobRunning
	}
	job := &Job{
		ID:        uuid.NewString(),
		Ticker:    ticker,
		Status:    StatusRunning,
		Requested: len(sorted),
		StartedAt: time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	s.running[ticker] = job.ID
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(job, sorted)

	log.Info().Str("job_id", job.ID).Str("ticker", ticker).
		Int("timestamps", len(sorted)).Msg("Backtest job accepted")
	return s.snapshot(job.ID), nil
}

// Job returns the current view of a job.
func (s *Service) Job(id string) (*Job, bool) {
	j := s.snapshot(id)
	return j, j != nil
}

func (s *Service) snapshot(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (s *Service) run(job *Job, timestamps []int64) {
	defer s.wg.Done()

	stored, err := s.builder.Build(s.root, job.Ticker, timestamps)

	s.mu.Lock()
	job.Stored = stored
	job.FinishedAt = time.Now().UTC()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
	}
	delete(s.running, job.Ticker)
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Str("ticker", job.Ticker).
			Msg("Backtest job failed")
		return
	}
	log.Info().Str("job_id", job.ID).Str("ticker", job.Ticker).
		Int("stored", stored).Msg("Backtest job completed")
}
