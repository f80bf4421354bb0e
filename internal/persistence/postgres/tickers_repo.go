package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stockrun/stockrun/internal/persistence"
)

// tickersRepo implements TickersRepo on the tickers table.
type tickersRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTickersRepo creates a PostgreSQL tickers repository.
func NewTickersRepo(db *sqlx.DB, timeout time.Duration) persistence.TickersRepo {
	return &tickersRepo{db: db, timeout: timeout}
}

// TickerSectors returns every known ticker with its sector.
func (r *tickersRepo) TickerSectors(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `SELECT ticker, sector FROM tickers`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var ticker, sector string
		if err := rows.Scan(&ticker, &sector); err != nil {
			return nil, fmt.Errorf("failed to scan ticker row: %w", err)
		}
		out[ticker] = sector
	}
	return out, rows.Err()
}

// UpsertTickers writes ticker→sector assignments.
func (r *tickersRepo) UpsertTickers(ctx context.Context, sectors map[string]string) error {
	if len(sectors) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tickers (ticker, sector)
		VALUES ($1, $2)
		ON CONFLICT (ticker) DO UPDATE SET sector = EXCLUDED.sector`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for ticker, sector := range sectors {
		if _, err := stmt.ExecContext(ctx, ticker, sector); err != nil {
			return fmt.Errorf("failed to upsert ticker %s: %w", ticker, err)
		}
	}

	return tx.Commit()
}
