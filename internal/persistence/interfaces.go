// Package persistence defines the repository contracts behind the service:
// price history, news, assembled reports, rules, and ticker metadata. The
// postgres subpackage implements them; everything above depends only on
// these interfaces so synthetic stores can stand in during tests.
package persistence

import (
	"context"
	"time"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/rules"
)

// Interval names the stored bar granularities.
const (
	IntervalDaily    = "1d"
	IntervalIntraday = "5m"
)

// PriceRepo serves and stores OHLCV history. The read side matches
// data.PriceStore so a PriceRepo plugs straight into the preparer.
type PriceRepo interface {
	// DailyOHLCV returns the full daily history for a ticker, ascending.
	DailyOHLCV(ctx context.Context, ticker string) (data.Frame, error)

	// IntradayOHLCV returns the most recent session's intraday bars.
	IntradayOHLCV(ctx context.Context, ticker string) (data.Frame, error)

	// UpsertBars writes a frame at the given interval, replacing bars that
	// share a close timestamp.
	UpsertBars(ctx context.Context, interval string, frame data.Frame) error
}

// NewsRepo serves and stores news articles. The read side matches
// data.NewsStore.
type NewsRepo interface {
	// RecentArticles returns up to limit articles for a ticker, newest first.
	RecentArticles(ctx context.Context, ticker string, limit int) ([]data.NewsItem, error)

	// InsertArticles stores articles, ignoring IDs already present.
	InsertArticles(ctx context.Context, items []data.NewsItem) error
}

// ReportsRepo stores assembled analysis reports keyed by (ticker, as-of).
// The load side matches backtest.ReportLoader; the save side matches the
// orchestrator's sink.
type ReportsRepo interface {
	// SaveReport upserts one report under its generation timestamp.
	SaveReport(ctx context.Context, rep *report.AnalysisReport) error

	// LoadReports returns the stored reports for the given as-of timestamps.
	// Missing timestamps are absent from the map, not errors.
	LoadReports(ctx context.Context, ticker string, timestamps []int64) (map[int64]*report.AnalysisReport, error)

	// LatestReport returns the most recent stored report for a ticker.
	LatestReport(ctx context.Context, ticker string) (*report.AnalysisReport, error)
}

// RulesRepo persists advisor rules. The list side matches rules.Store.
type RulesRepo interface {
	// ListRules returns stored rules, optionally filtered by purpose.
	ListRules(ctx context.Context, purpose semantic.Purpose) ([]rules.StoredRule, error)

	// UpsertRule writes one rule by ID.
	UpsertRule(ctx context.Context, r rules.StoredRule) error

	// DeleteRule removes one rule by ID.
	DeleteRule(ctx context.Context, id string) error
}

// TickersRepo serves the ticker universe. The read side matches
// data.SectorStore.
type TickersRepo interface {
	// TickerSectors returns every known ticker with its sector.
	TickerSectors(ctx context.Context) (map[string]string, error)

	// UpsertTickers writes ticker→sector assignments.
	UpsertTickers(ctx context.Context, sectors map[string]string) error
}

// Repository aggregates all persistence interfaces.
type Repository struct {
	Prices  PriceRepo
	News    NewsRepo
	Reports ReportsRepo
	Rules   RulesRepo
	Tickers TickersRepo
}

// HealthCheck represents repository health status.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer.
type RepositoryHealth interface {
	// Health returns current repository health status.
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to the database.
	Ping(ctx context.Context) error

	// Stats returns connection pool statistics.
	Stats(ctx context.Context) map[string]interface{}
}
