package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/errs"
	"github.com/stockrun/stockrun/internal/persistence"
)

// reportsRepo implements ReportsRepo on the analysis_reports table.
type reportsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewReportsRepo creates a PostgreSQL reports repository.
func NewReportsRepo(db *sqlx.DB, timeout time.Duration) persistence.ReportsRepo {
	return &reportsRepo{db: db, timeout: timeout}
}

// SaveReport upserts one report under its generation timestamp. The body is
// the full serialized report; the ticker and as-of columns exist to query by.
func (r *reportsRepo) SaveReport(ctx context.Context, rep *report.AnalysisReport) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO analysis_reports (ticker, as_of_ts, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker, as_of_ts) DO UPDATE SET
			body = EXCLUDED.body, updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, rep.Ticker, rep.GeneratedTS, body); err != nil {
		return fmt.Errorf("failed to save report %s@%d: %w", rep.Ticker, rep.GeneratedTS, err)
	}
	return nil
}

// LoadReports returns the stored reports for the given as-of timestamps.
// Missing timestamps are simply absent from the map.
func (r *reportsRepo) LoadReports(ctx context.Context, ticker string, timestamps []int64) (map[int64]*report.AnalysisReport, error) {
	out := make(map[int64]*report.AnalysisReport, len(timestamps))
	if len(timestamps) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT as_of_ts, body
		FROM analysis_reports
		WHERE ticker = $1 AND as_of_ts = ANY($2)`

	rows, err := r.db.QueryxContext(ctx, query, ticker, pq.Array(timestamps))
	if err != nil {
		return nil, fmt.Errorf("failed to load reports for %s: %w", ticker, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts int64
		var body []byte
		if err := rows.Scan(&ts, &body); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		var rep report.AnalysisReport
		if err := json.Unmarshal(body, &rep); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report %s@%d: %w", ticker, ts, err)
		}
		out[ts] = &rep
	}
	return out, rows.Err()
}

// LatestReport returns the most recent stored report for a ticker.
func (r *reportsRepo) LatestReport(ctx context.Context, ticker string) (*report.AnalysisReport, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT body
		FROM analysis_reports
		WHERE ticker = $1
		ORDER BY as_of_ts DESC
		LIMIT 1`

	var body []byte
	err := r.db.QueryRowxContext(ctx, query, ticker).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NoData("no stored report for %s", ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest report for %s: %w", ticker, err)
	}

	var rep report.AnalysisReport
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest report for %s: %w", ticker, err)
	}
	return &rep, nil
}
