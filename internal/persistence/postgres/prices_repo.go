package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/errs"
	"github.com/stockrun/stockrun/internal/persistence"
)

// priceRepo implements PriceRepo on the ohlcv_bars table.
type priceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPriceRepo creates a PostgreSQL price repository.
func NewPriceRepo(db *sqlx.DB, timeout time.Duration) persistence.PriceRepo {
	return &priceRepo{db: db, timeout: timeout}
}

type barRow struct {
	TS     int64   `db:"ts"`
	Open   float64 `db:"open"`
	High   float64 `db:"high"`
	Low    float64 `db:"low"`
	Close  float64 `db:"close"`
	Volume float64 `db:"volume"`
}

// DailyOHLCV returns the full daily history for a ticker, ascending by close.
func (r *priceRepo) DailyOHLCV(ctx context.Context, ticker string) (data.Frame, error) {
	return r.frame(ctx, ticker, persistence.IntervalDaily)
}

// IntradayOHLCV returns the latest session's intraday bars. The session is
// the calendar day of the most recent stored bar.
func (r *priceRepo) IntradayOHLCV(ctx context.Context, ticker string) (data.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Timestamps are epoch seconds, so the session floor is plain integer
	// arithmetic on the latest bar.
	query := `
		SELECT ts, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE ticker = $1 AND interval = $2
		  AND ts >= COALESCE((
			SELECT (MAX(ts) / 86400) * 86400
			FROM ohlcv_bars WHERE ticker = $1 AND interval = $2
		  ), 0)
		ORDER BY ts ASC`

	var rows []barRow
	if err := r.db.SelectContext(ctx, &rows, query, ticker, persistence.IntervalIntraday); err != nil {
		return data.Frame{}, fmt.Errorf("failed to query intraday bars for %s: %w", ticker, err)
	}
	if len(rows) == 0 {
		return data.Frame{}, errs.NoData("no intraday bars for %s", ticker)
	}
	return rowsToFrame(ticker, rows), nil
}

func (r *priceRepo) frame(ctx context.Context, ticker, interval string) (data.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE ticker = $1 AND interval = $2
		ORDER BY ts ASC`

	var rows []barRow
	if err := r.db.SelectContext(ctx, &rows, query, ticker, interval); err != nil {
		return data.Frame{}, fmt.Errorf("failed to query %s bars for %s: %w", interval, ticker, err)
	}
	if len(rows) == 0 {
		return data.Frame{}, errs.NoData("no %s bars for %s", interval, ticker)
	}
	return rowsToFrame(ticker, rows), nil
}

func rowsToFrame(ticker string, rows []barRow) data.Frame {
	bars := make([]data.Bar, len(rows))
	for i, row := range rows {
		bars[i] = data.Bar{
			TS:     row.TS,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		}
	}
	return data.Frame{Ticker: ticker, Bars: bars}
}

// UpsertBars writes a frame at the given interval inside one transaction.
func (r *priceRepo) UpsertBars(ctx context.Context, interval string, frame data.Frame) error {
	if frame.Empty() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(frame.Bars)/500+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ohlcv_bars (ticker, interval, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, interval, ts) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range frame.Bars {
		if _, err := stmt.ExecContext(ctx,
			frame.Ticker, interval, b.TS, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("failed to upsert bar %s@%d: %w", frame.Ticker, b.TS, err)
		}
	}

	return tx.Commit()
}
