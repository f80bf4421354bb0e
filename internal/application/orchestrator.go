package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/stockrun/stockrun/internal/advisor"
	"github.com/stockrun/stockrun/internal/analysis/forecast"
	"github.com/stockrun/stockrun/internal/analysis/news"
	"github.com/stockrun/stockrun/internal/analysis/technical"
	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/errs"
	"github.com/stockrun/stockrun/internal/profile"
	"github.com/stockrun/stockrun/internal/rules"
)

// ReportSink receives every successfully assembled report. Persistence is
// best effort: sink failures are logged, never surfaced to the caller.
type ReportSink interface {
	SaveReport(ctx context.Context, rep *report.AnalysisReport) error
}

// Deps wires an orchestrator. Sink and Cache are optional.
type Deps struct {
	Meta       *data.Metadata
	Prices     *data.Preparer
	News       data.NewsStore
	Technical  *technical.Analyzer
	Forecaster *forecast.Coordinator
	NewsNLP    *news.Analyzer
	Rules      advisor.RuleSource
	Mapper     advisor.Mapper
	Profiles   profile.Service
	Sink       ReportSink
	Cache      data.ByteCache
	CacheTTL   time.Duration
	CPU        *semaphore.Weighted

	// RuleParallelism bounds per-rule evaluation during bulk replay.
	RuleParallelism int
	// NewsArticleLimit caps how many recent articles one report reads.
	NewsArticleLimit int
	// PreloadSectors restricts model warm-up to these sectors; empty means
	// every sector in the universe.
	PreloadSectors []string
}

// Orchestrator serves the analysis and advisor request lifecycles. All
// methods are safe for concurrent use; every flow is independent.
type Orchestrator struct {
	deps Deps
	warm *WarmupEvent

	preloadMu sync.Mutex
}

// NewOrchestrator builds an orchestrator with an unset warm-up event.
func NewOrchestrator(d Deps) *Orchestrator {
	if d.NewsArticleLimit <= 0 {
		d.NewsArticleLimit = 8
	}
	if d.RuleParallelism <= 0 {
		d.RuleParallelism = 4
	}
	return &Orchestrator{deps: d, warm: NewWarmupEvent()}
}

// Warmup exposes the warm-up event for servers and schedulers.
func (o *Orchestrator) Warmup() *WarmupEvent { return o.warm }

// Ready reports whether warm-up completed.
func (o *Orchestrator) Ready() bool { return o.warm.IsSet() }

// Meta exposes the immutable ticker universe.
func (o *Orchestrator) Meta() *data.Metadata { return o.deps.Meta }

func moduleFailed(module string, cause error) *errs.Error {
	return &errs.Error{
		Kind:    errs.KindMissingReport,
		Module:  module,
		Message: moduleLabel(module) + " module failed",
		Cause:   cause,
	}
}

func moduleLabel(module string) string {
	switch module {
	case report.ModuleTechnical:
		return "Technical analysis"
	case report.ModuleForecasting:
		return "Forecasting"
	case report.ModuleNews:
		return "News analysis"
	default:
		return module
	}
}

// FullAnalysis runs the three analysis modules for one ticker and assembles
// their output. All modules run concurrently over one shared OHLCV fetch;
// if any module fails the whole request fails, nothing partial leaves here.
func (o *Orchestrator) FullAnalysis(ctx context.Context, ticker string, horizon Horizon, scope report.Scope) (*report.AnalysisReport, error) {
	if !o.warm.IsSet() {
		return nil, errs.NotReady()
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !o.deps.Meta.Known(ticker) {
		return nil, errs.NoData("unknown ticker %s", ticker)
	}
	sector, _ := o.deps.Meta.Sector(ticker)

	daily, err := o.deps.Prices.Daily(ctx, ticker)
	if err != nil {
		return nil, err
	}
	var intraday data.Frame
	if scope != report.ScopeDaily {
		// The caller asked for intraday coverage, so a missing intraday
		// frame fails the request rather than silently narrowing the scope.
		intraday, err = o.deps.Prices.Intraday(ctx, ticker)
		if err != nil {
			return nil, err
		}
	}

	cacheKey := ""
	if o.deps.Cache != nil {
		if last, ok := daily.Last(); ok {
			cacheKey = fmt.Sprintf("report:%s:%s:%s:%d", ticker, horizon, scope, last.TS)
			if raw, ok := o.deps.Cache.Get(ctx, cacheKey); ok {
				var cached report.AnalysisReport
				if err := json.Unmarshal(raw, &cached); err == nil {
					log.Debug().Str("ticker", ticker).Msg("Serving cached analysis report")
					return &cached, nil
				}
			}
		}
	}

	started := time.Now()
	rep := report.New(ticker, started)

	var (
		wg       sync.WaitGroup
		techSec  *report.TechnicalSection
		forecSec []report.TaskForecast
		newsSec  *report.NewsSection
	)
	branchErrs := make(map[string]error, 3)
	var mu sync.Mutex
	fail := func(module string, err error) {
		mu.Lock()
		branchErrs[module] = err
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		sec, err := o.runTechnical(ctx, ticker, scope, daily, intraday)
		if err != nil {
			fail(report.ModuleTechnical, err)
			return
		}
		techSec = sec
	}()
	go func() {
		defer wg.Done()
		row := forecast.BuildFeatures(daily)
		fc, err := o.deps.Forecaster.GenerateReport(ctx, row, ticker, sector, daily.LastClose())
		if err != nil {
			fail(report.ModuleForecasting, err)
			return
		}
		forecSec = fc
	}()
	go func() {
		defer wg.Done()
		items, err := o.deps.News.RecentArticles(ctx, ticker, o.deps.NewsArticleLimit)
		if err != nil {
			fail(report.ModuleNews, err)
			return
		}
		sec, err := o.deps.NewsNLP.Analyze(ctx, ticker, items)
		if err != nil {
			fail(report.ModuleNews, err)
			return
		}
		newsSec = sec
	}()
	wg.Wait()

	if len(branchErrs) > 0 {
		var failed []error
		for _, module := range []string{report.ModuleTechnical, report.ModuleForecasting, report.ModuleNews} {
			if err, ok := branchErrs[module]; ok {
				log.Error().Err(err).Str("ticker", ticker).Str("module", module).
					Msg("Analysis module failed")
				failed = append(failed, moduleFailed(module, err))
			}
		}
		return nil, errors.Join(failed...)
	}

	rep.Technical = techSec
	rep.Forecasting = forecSec
	rep.News = newsSec
	report.Sweep(rep)

	if cacheKey != "" {
		if raw, err := json.Marshal(rep); err == nil {
			o.deps.Cache.Set(ctx, cacheKey, raw, o.deps.CacheTTL)
		}
	}
	if o.deps.Sink != nil {
		if err := o.deps.Sink.SaveReport(ctx, rep); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("Report persistence failed, continuing")
		}
	}

	log.Info().Str("ticker", ticker).Str("scope", string(scope)).
		Dur("elapsed", time.Since(started)).
		Msg("Full analysis assembled")
	return rep, nil
}

func (o *Orchestrator) runTechnical(ctx context.Context, ticker string, scope report.Scope, daily, intraday data.Frame) (*report.TechnicalSection, error) {
	if o.deps.CPU != nil {
		if err := o.deps.CPU.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer o.deps.CPU.Release(1)
	}

	sec := &report.TechnicalSection{Ticker: ticker}
	if scope != report.ScopeIntraday {
		tr, err := o.deps.Technical.Analyze(daily)
		if err != nil {
			return nil, fmt.Errorf("daily: %w", err)
		}
		sec.Daily = tr
	}
	if scope != report.ScopeDaily && !intraday.Empty() {
		tr, err := o.deps.Technical.Analyze(intraday)
		if err != nil {
			return nil, fmt.Errorf("intraday: %w", err)
		}
		sec.Intraday = tr
	}
	return sec, nil
}

// filteredRules narrows a rule source through the profile's selector.
type filteredRules struct {
	base advisor.RuleSource
	keep profile.Selector
}

func (f filteredRules) RulesByPurpose(ctx context.Context, p semantic.Purpose) ([]*rules.Rule, error) {
	rs, err := f.base.RulesByPurpose(ctx, p)
	if err != nil {
		return nil, err
	}
	out := rs[:0:0]
	for _, r := range rs {
		if f.keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FullAdvisor analyzes the ticker at the medium profile, resolves the
// user's preferences, and runs the rule population over the fresh report.
func (o *Orchestrator) FullAdvisor(ctx context.Context, ticker, userID string, override *advisor.Weights) (*advisor.Report, error) {
	rep, err := o.FullAnalysis(ctx, ticker, HorizonMedium, report.ScopeAll)
	if err != nil {
		return nil, err
	}

	prof, err := o.deps.Profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve profile %s: %w", userID, err)
	}
	weights := o.deps.Profiles.MetaWeights(prof)
	if override != nil {
		weights = *override
	}

	source := filteredRules{base: o.deps.Rules, keep: o.deps.Profiles.RuleSelector(prof)}
	engine := advisor.NewEngine(source, o.deps.Mapper, o.deps.RuleParallelism)
	return engine.Advise(ctx, rep, userID, weights)
}

// PreloadAll pre-warms every heavy dependency: forecasting models for all
// sectors and the news leaf models. The warm-up event fires only when every
// branch succeeded; failures are recorded and the next call retries.
func (o *Orchestrator) PreloadAll(ctx context.Context) error {
	o.preloadMu.Lock()
	defer o.preloadMu.Unlock()
	if o.warm.IsSet() {
		return nil
	}

	started := time.Now()
	log.Info().Msg("Preload starting")

	branches := []struct {
		module string
		run    func(context.Context) error
	}{
		{report.ModuleForecasting, func(ctx context.Context) error {
			sectors := o.deps.PreloadSectors
			if len(sectors) == 0 {
				sectors = o.deps.Meta.Sectors()
			}
			return o.deps.Forecaster.PreloadForSectors(ctx, sectors)
		}},
		{report.ModuleNews, func(ctx context.Context) error {
			return o.deps.NewsNLP.Preload(ctx)
		}},
	}

	results := make([]error, len(branches))
	var wg sync.WaitGroup
	for i, b := range branches {
		i, b := i, b
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = b.run(ctx)
		}()
	}
	wg.Wait()

	var failedModules []string
	var failures []string
	var first error
	for i, err := range results {
		if err == nil {
			continue
		}
		failedModules = append(failedModules, branches[i].module)
		failures = append(failures, fmt.Sprintf("%s: %v", branches[i].module, err))
		if first == nil {
			first = err
		}
		log.Error().Err(err).Str("module", branches[i].module).Msg("Preload branch failed")
	}

	if len(failedModules) > 0 {
		o.warm.RecordFailures(failures)
		return errs.PreloadFailed(failedModules, first)
	}

	o.warm.Set()
	log.Info().Dur("elapsed", time.Since(started)).Msg("Preload complete, service ready")
	return nil
}
