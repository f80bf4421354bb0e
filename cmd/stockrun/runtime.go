package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stockrun/stockrun/internal/advisor"
	"github.com/stockrun/stockrun/internal/analysis/forecast"
	"github.com/stockrun/stockrun/internal/analysis/news"
	"github.com/stockrun/stockrun/internal/analysis/technical"
	"github.com/stockrun/stockrun/internal/application"
	"github.com/stockrun/stockrun/internal/backtest"
	"github.com/stockrun/stockrun/internal/config"
	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/semantic"
	httpapi "github.com/stockrun/stockrun/internal/interfaces/http"
	"github.com/stockrun/stockrun/internal/interfaces/http/handlers"
	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/persistence"
	"github.com/stockrun/stockrun/internal/persistence/postgres"
	"github.com/stockrun/stockrun/internal/profile"
	"github.com/stockrun/stockrun/internal/rules"
	"github.com/stockrun/stockrun/internal/scheduler"
)

// loadConfig resolves the configuration for one invocation and applies the
// logging level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		cfg.Logging.Level = override
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	return cfg, nil
}

// serviceRuntime is the fully wired service. Every command builds one and
// operates on the pieces it needs; serve runs all of them.
type serviceRuntime struct {
	cfg *config.Config

	db       *postgres.Manager
	cache    data.ByteCache
	meta     *data.Metadata
	orch     *application.Orchestrator
	library  *rules.Library
	registry *rules.Registry
	jobs     *backtest.Service
	manager  *backtest.Manager
	metrics  *httpapi.MetricsRegistry
	server   *httpapi.Server
	sched    *scheduler.Scheduler
}

// buildRuntime wires the service from configuration. Sources fall back to
// their offline counterparts when the backing system is not configured:
// synthetic stores for a disabled database, the in-memory cache for a
// missing redis address, synthetic models for a missing artifact store and
// the in-process job service for a missing backtest provider.
func buildRuntime(ctx context.Context, cfg *config.Config) (*serviceRuntime, error) {
	db, err := postgres.NewManager(postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
		Enabled:         cfg.Database.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var (
		universe  data.SectorStore        = &data.SyntheticUniverse{}
		prices    data.PriceStore         = data.NewSyntheticPrices()
		newsFeed  data.NewsStore          = &data.SyntheticNews{}
		reports   persistence.ReportsRepo = persistence.NewMemoryReports()
		ruleStore rules.Store
	)
	if repo := db.Repository(); repo != nil {
		universe = repo.Tickers
		prices = repo.Prices
		newsFeed = repo.News
		reports = repo.Reports
		ruleStore = repo.Rules
	} else {
		log.Warn().Msg("Database disabled, serving synthetic data")
	}

	meta, err := data.LoadMetadata(ctx, universe)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load ticker universe: %w", err)
	}

	cache := data.NewAutoCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	preparer := data.NewPreparer(prices, cache, cfg.Redis.TTLOHLCV)

	var store models.ArtifactStore
	if cfg.Artifacts.BaseURL != "" {
		store = models.NewHTTPStore(models.HTTPStoreConfig{
			BaseURL:            cfg.Artifacts.BaseURL,
			RequestTimeout:     cfg.Artifacts.Timeout,
			RatePerSec:         cfg.Artifacts.RatePerSec,
			Burst:              cfg.Artifacts.Burst,
			BreakerMaxRequests: cfg.Artifacts.Breaker.MaxRequests,
			BreakerInterval:    cfg.Artifacts.Breaker.Interval,
			BreakerTimeout:     cfg.Artifacts.Breaker.Timeout,
		})
	} else {
		// One snapshot from the epoch so historical generation resolves a
		// model version for any timestamp.
		store = models.NewSyntheticStore(forecast.CanonicalFeatures, []int64{0})
		log.Warn().Msg("No artifact store configured, serving synthetic models")
	}

	modelCache := models.NewCache()
	cpu := application.NewCPUGate()
	ta := technical.New(technical.Config{})
	forecaster := forecast.New(store, modelCache, cpu)

	registry := rules.BuiltinRegistry()
	library := rules.NewLibrary(registry, ruleStore)

	mapper, err := advisorMapper(cfg.Advisor.Labels)
	if err != nil {
		db.Close()
		return nil, err
	}

	profiles := profile.NewStaticService(nil, profile.Profile{
		// Config weights are pointers so an explicit zero in the file is
		// honored rather than treated as unset.
		Weights: advisor.Weights{
			Decision:    cfg.Advisor.Weights.Decision,
			Risk:        cfg.Advisor.Weights.Risk,
			Opportunity: cfg.Advisor.Weights.Opportunity,
		},
	})

	orch := application.NewOrchestrator(application.Deps{
		Meta:            meta,
		Prices:          preparer,
		News:            newsFeed,
		Technical:       ta,
		Forecaster:      forecaster,
		NewsNLP:         news.NewAnalyzer(nil, cpu),
		Rules:           library,
		Mapper:          mapper,
		Profiles:        profiles,
		Sink:            reports,
		Cache:           cache,
		CacheTTL:        cfg.Redis.TTLReports,
		CPU:             cpu,
		RuleParallelism: cfg.Advisor.RuleParallelism,
		PreloadSectors:  cfg.Forecast.Sectors,
	})

	jobs := backtest.NewService(backtest.NewHistoryBuilder(meta, preparer, ta, forecaster, reports))

	var client backtest.Client
	if cfg.Backtest.ServiceURL != "" {
		client = backtest.NewHTTPClient(backtest.HTTPClientConfig{
			BaseURL: cfg.Backtest.ServiceURL,
			Timeout: cfg.Backtest.ConnectTimeout,
		})
	} else {
		client = backtest.NewLocalClient(jobs)
		log.Info().Msg("No backtest provider configured, running jobs in process")
	}

	manager := backtest.NewManager(client, preparer, reports, backtest.ManagerConfig{
		Concurrency:  cfg.Backtest.ParallelLimit,
		PollInterval: cfg.Backtest.PollingInterval(),
		PollDeadline: cfg.Backtest.PollDeadline,
		Selector: backtest.SelectorConfig{
			Start:              cfg.Backtest.Selector.StartDate,
			End:                cfg.Backtest.Selector.EndDate,
			DayOfMonth:         cfg.Backtest.Selector.DayOfMonth,
			MaxSpecialPoints:   cfg.Backtest.Selector.MaxSpecialPoints,
			VolatilityQuantile: cfg.Backtest.Selector.VolatilityQuantile,
			RecencyWeight:      cfg.Backtest.Selector.RecencyWeight,
		},
	})

	metrics := httpapi.NewMetricsRegistry()
	modelCache.SetObserver(metrics.ModelCacheObserver(modelCache))

	var pinger data.Pinger
	if p, ok := cache.(data.Pinger); ok {
		pinger = p
	}
	h := handlers.NewHandlers(handlers.Deps{
		Orchestrator: orch,
		Library:      library,
		Registry:     registry,
		Jobs:         jobs,
		Manager:      manager,
		Health:       handlers.HealthSources{DB: db.Health(), Cache: pinger},
	})

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, h, metrics, httpapi.NewStreamHub(manager))
	if err != nil {
		jobs.Close()
		db.Close()
		return nil, err
	}

	sched := scheduler.New(scheduler.StandardRunners(orch, manager))
	for _, job := range cfg.Scheduler.Jobs {
		err := sched.Register(scheduler.Job{
			Name:     job.Name,
			Schedule: job.Schedule,
			Type:     job.Type,
			Enabled:  job.Enabled,
		})
		if err != nil {
			jobs.Close()
			db.Close()
			return nil, fmt.Errorf("scheduler: %w", err)
		}
	}

	return &serviceRuntime{
		cfg:      cfg,
		db:       db,
		cache:    cache,
		meta:     meta,
		orch:     orch,
		library:  library,
		registry: registry,
		jobs:     jobs,
		manager:  manager,
		metrics:  metrics,
		server:   server,
		sched:    sched,
	}, nil
}

// Close releases background resources. The HTTP server and scheduler are
// stopped by the serve loop before this runs.
func (rt *serviceRuntime) Close() {
	rt.jobs.Close()
	if err := rt.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Database close failed")
	}
}

// advisorMapper builds the label catalog, translating configured purpose
// keys into the closed purpose set.
func advisorMapper(labels map[string][]config.LabelBand) (advisor.Mapper, error) {
	if len(labels) == 0 {
		return advisor.NewMapper(nil)
	}
	overrides := make(map[semantic.Purpose][]advisor.Band, len(labels))
	for key, bands := range labels {
		p, err := semantic.ParsePurpose(key)
		if err != nil {
			return nil, fmt.Errorf("advisor labels: %w", err)
		}
		out := make([]advisor.Band, len(bands))
		for i, b := range bands {
			out[i] = advisor.Band{From: b.From, Label: b.Label, Recommendation: b.Recommendation}
		}
		overrides[p] = out
	}
	return advisor.NewMapper(overrides)
}
