package persistence

import (
	"context"
	"sync"

	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/errs"
)

// MemoryReports is an in-memory ReportsRepo. It backs deployments that run
// without a database and doubles as the report sink in tests. Semantics
// mirror the postgres implementation: SaveReport upserts on (ticker,
// generated-at), LoadReports omits missing timestamps, and LatestReport on
// an unknown ticker reports NO_DATA.
type MemoryReports struct {
	mu       sync.RWMutex
	byTicker map[string]map[int64]*report.AnalysisReport
}

// NewMemoryReports returns an empty in-memory report store.
func NewMemoryReports() *MemoryReports {
	return &MemoryReports{byTicker: make(map[string]map[int64]*report.AnalysisReport)}
}

// SaveReport upserts one report under its generation timestamp.
func (m *MemoryReports) SaveReport(ctx context.Context, rep *report.AnalysisReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byTS := m.byTicker[rep.Ticker]
	if byTS == nil {
		byTS = make(map[int64]*report.AnalysisReport)
		m.byTicker[rep.Ticker] = byTS
	}
	byTS[rep.GeneratedTS] = rep
	return nil
}

// LoadReports returns the stored reports for the given as-of timestamps.
// Missing timestamps are absent from the map, not errors.
func (m *MemoryReports) LoadReports(ctx context.Context, ticker string, timestamps []int64) (map[int64]*report.AnalysisReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]*report.AnalysisReport, len(timestamps))
	byTS := m.byTicker[ticker]
	if byTS == nil {
		return out, nil
	}
	for _, ts := range timestamps {
		if rep, ok := byTS[ts]; ok {
			out[ts] = rep
		}
	}
	return out, nil
}

// LatestReport returns the newest stored report for a ticker.
func (m *MemoryReports) LatestReport(ctx context.Context, ticker string) (*report.AnalysisReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *report.AnalysisReport
	for _, rep := range m.byTicker[ticker] {
		if latest == nil || rep.GeneratedTS > latest.GeneratedTS {
			latest = rep
		}
	}
	if latest == nil {
		return nil, errs.NoData("no stored report for %s", ticker)
	}
	return latest, nil
}

// Count reports how many reports are stored for a ticker.
func (m *MemoryReports) Count(ticker string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byTicker[ticker])
}
