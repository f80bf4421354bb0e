package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the service. Every subsystem reads
// its section from here; nothing else parses YAML or environment variables.
type Config struct {
	Server    ServerSection    `yaml:"server"`
	Database  DatabaseSection  `yaml:"database"`
	Redis     RedisSection     `yaml:"redis"`
	Artifacts ArtifactSection  `yaml:"artifact_store"`
	Backtest  BacktestSection  `yaml:"backtest"`
	Forecast  ForecastSection  `yaml:"forecast"`
	Advisor   AdvisorSection   `yaml:"advisor"`
	Scheduler SchedulerSection `yaml:"scheduler"`
	Logging   LoggingSection   `yaml:"logging"`
}

// ServerSection holds HTTP server settings.
type ServerSection struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseSection holds PostgreSQL connection settings.
type DatabaseSection struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	Enabled         bool          `yaml:"enabled"`
}

// RedisSection holds warm-cache settings. An empty addr selects the
// in-memory fallback.
type RedisSection struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	TTLReports time.Duration `yaml:"ttl_reports"`
	TTLOHLCV   time.Duration `yaml:"ttl_ohlcv"`
}

// ArtifactSection tunes the remote artifact-store client. An empty base_url
// selects the synthetic store so the service runs without a model backend.
type ArtifactSection struct {
	BaseURL    string         `yaml:"base_url"`
	Timeout    time.Duration  `yaml:"timeout"`
	RatePerSec float64        `yaml:"rate_per_sec"`
	Burst      int            `yaml:"burst"`
	Breaker    BreakerSection `yaml:"breaker"`
}

// BreakerSection mirrors the gobreaker knobs we expose.
type BreakerSection struct {
	MaxRequests uint32        `yaml:"max_requests"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// BacktestSection configures context preparation and the local job service.
type BacktestSection struct {
	ServiceURL             string          `yaml:"service_url"`
	ConnectTimeout         time.Duration   `yaml:"connect_timeout"`
	PollingIntervalSeconds int             `yaml:"polling_interval_seconds"`
	PollDeadline           time.Duration   `yaml:"poll_deadline"`
	ParallelLimit          int             `yaml:"parallel_concurrency_limit"`
	Selector               SelectorSection `yaml:"selector"`
}

// SelectorSection configures historical point selection.
type SelectorSection struct {
	StartDate          time.Time `yaml:"start_date"`
	EndDate            time.Time `yaml:"end_date"`
	DayOfMonth         int       `yaml:"day_of_month"`
	MaxSpecialPoints   int       `yaml:"max_special_points"`
	VolatilityQuantile float64   `yaml:"volatility_quantile"`
	RecencyWeight      float64   `yaml:"recency_weight"`
}

// ForecastSection configures the forecasting coordinator. The task set and
// per-task rounding are part of the model artifact contract, so only the
// preload scope is configurable.
type ForecastSection struct {
	Sectors []string `yaml:"sectors"` // preload list; empty means every known sector
}

// AdvisorSection configures rule evaluation and the label catalog.
type AdvisorSection struct {
	Weights         WeightsSection         `yaml:"weights"`
	RuleParallelism int                    `yaml:"rule_parallelism"`
	Labels          map[string][]LabelBand `yaml:"labels"` // purpose -> override bands
}

// WeightsSection holds the default per-purpose meta weights. Fields are
// pointers so an explicit zero in the file is distinguishable from an
// omitted weight.
type WeightsSection struct {
	Decision    *float64 `yaml:"decision"`
	Risk        *float64 `yaml:"risk"`
	Opportunity *float64 `yaml:"opportunity"`
}

// LabelBand is one labeled score interval of the advisor catalog.
type LabelBand struct {
	From           float64 `yaml:"from"`
	Label          string  `yaml:"label"`
	Recommendation string  `yaml:"recommendation"`
}

// SchedulerSection lists cron jobs.
type SchedulerSection struct {
	Jobs []JobSection `yaml:"jobs"`
}

// JobSection is one scheduled job entry.
type JobSection struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron format: "*/5 * * * *"
	Type     string `yaml:"type"`     // "preload.retry", "backtest.nightly"
	Enabled  bool   `yaml:"enabled"`
}

// LoggingSection holds log settings.
type LoggingSection struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file (when it exists), applies
// environment variable overrides, and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration with no file or env input.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("HTTP_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("HTTP_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.Port = port
		}
	}
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if enabled := os.Getenv("PG_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			cfg.Database.Enabled = val
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if url := os.Getenv("ARTIFACT_STORE_URL"); url != "" {
		cfg.Artifacts.BaseURL = url
	}
	if url := os.Getenv("BACKTEST_SERVICE_URL"); url != "" {
		cfg.Backtest.ServiceURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

func weightDefault() *float64 {
	v := 1.0
	return &v
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 30 * time.Second
	}

	if c.Redis.TTLReports == 0 {
		c.Redis.TTLReports = 90 * time.Second
	}
	if c.Redis.TTLOHLCV == 0 {
		c.Redis.TTLOHLCV = 5 * time.Minute
	}

	if c.Artifacts.Timeout == 0 {
		c.Artifacts.Timeout = 30 * time.Second
	}
	if c.Artifacts.RatePerSec == 0 {
		c.Artifacts.RatePerSec = 10
	}
	if c.Artifacts.Burst == 0 {
		c.Artifacts.Burst = 10
	}
	if c.Artifacts.Breaker.Timeout == 0 {
		c.Artifacts.Breaker.Timeout = 30 * time.Second
	}

	if c.Backtest.ConnectTimeout == 0 {
		c.Backtest.ConnectTimeout = 30 * time.Second
	}
	if c.Backtest.PollingIntervalSeconds == 0 {
		c.Backtest.PollingIntervalSeconds = 45
	}
	if c.Backtest.PollDeadline == 0 {
		c.Backtest.PollDeadline = 30 * time.Minute
	}
	if c.Backtest.ParallelLimit == 0 {
		c.Backtest.ParallelLimit = 3
	}
	if c.Backtest.Selector.DayOfMonth == 0 {
		c.Backtest.Selector.DayOfMonth = 15
	}
	if c.Backtest.Selector.MaxSpecialPoints == 0 {
		c.Backtest.Selector.MaxSpecialPoints = 10
	}
	if c.Backtest.Selector.VolatilityQuantile == 0 {
		c.Backtest.Selector.VolatilityQuantile = 0.7
	}
	if c.Backtest.Selector.RecencyWeight == 0 {
		c.Backtest.Selector.RecencyWeight = 0.3
	}

	if c.Advisor.Weights.Decision == nil {
		c.Advisor.Weights.Decision = weightDefault()
	}
	if c.Advisor.Weights.Risk == nil {
		c.Advisor.Weights.Risk = weightDefault()
	}
	if c.Advisor.Weights.Opportunity == nil {
		c.Advisor.Weights.Opportunity = weightDefault()
	}
	if c.Advisor.RuleParallelism == 0 {
		c.Advisor.RuleParallelism = 4
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required when database is enabled")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot exceed max_open_conns")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive")
	}

	if c.Backtest.ParallelLimit <= 0 {
		return fmt.Errorf("parallel_concurrency_limit must be positive")
	}
	if c.Backtest.PollingIntervalSeconds <= 0 {
		return fmt.Errorf("polling_interval_seconds must be positive")
	}
	sel := c.Backtest.Selector
	if sel.DayOfMonth < 1 || sel.DayOfMonth > 31 {
		return fmt.Errorf("selector day_of_month %d out of range", sel.DayOfMonth)
	}
	if sel.VolatilityQuantile <= 0 || sel.VolatilityQuantile >= 1 {
		return fmt.Errorf("selector volatility_quantile must be in (0, 1)")
	}
	if sel.RecencyWeight < 0 || sel.RecencyWeight > 1 {
		return fmt.Errorf("selector recency_weight must be in [0, 1]")
	}
	if !sel.StartDate.IsZero() && !sel.EndDate.IsZero() && sel.EndDate.Before(sel.StartDate) {
		return fmt.Errorf("selector end_date precedes start_date")
	}

	if *c.Advisor.Weights.Decision < 0 || *c.Advisor.Weights.Risk < 0 || *c.Advisor.Weights.Opportunity < 0 {
		return fmt.Errorf("advisor weights cannot be negative")
	}
	if c.Advisor.RuleParallelism <= 0 {
		return fmt.Errorf("rule_parallelism must be positive")
	}

	seen := make(map[string]bool, len(c.Scheduler.Jobs))
	for _, job := range c.Scheduler.Jobs {
		if job.Name == "" {
			return fmt.Errorf("scheduler job without a name")
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate scheduler job %q", job.Name)
		}
		seen[job.Name] = true
		if job.Enabled && job.Schedule == "" {
			return fmt.Errorf("scheduler job %q enabled without a schedule", job.Name)
		}
	}

	return nil
}

// PollingInterval returns the backtest polling cadence as a duration.
func (b BacktestSection) PollingInterval() time.Duration {
	return time.Duration(b.PollingIntervalSeconds) * time.Second
}
