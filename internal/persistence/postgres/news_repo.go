package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/persistence"
)

// newsRepo implements NewsRepo on the news_articles table.
type newsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewNewsRepo creates a PostgreSQL news repository.
func NewNewsRepo(db *sqlx.DB, timeout time.Duration) persistence.NewsRepo {
	return &newsRepo{db: db, timeout: timeout}
}

type newsRow struct {
	ID          string    `db:"id"`
	Ticker      string    `db:"ticker"`
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	PublishedAt time.Time `db:"published_at"`
}

// RecentArticles returns up to limit articles for a ticker, newest first.
// An empty result is a valid answer, not an error; the news module treats
// no coverage as a neutral signal.
func (r *newsRepo) RecentArticles(ctx context.Context, ticker string, limit int) ([]data.NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, ticker, title, body, published_at
		FROM news_articles
		WHERE ticker = $1
		ORDER BY published_at DESC
		LIMIT $2`

	var rows []newsRow
	if err := r.db.SelectContext(ctx, &rows, query, ticker, limit); err != nil {
		return nil, fmt.Errorf("failed to query articles for %s: %w", ticker, err)
	}

	items := make([]data.NewsItem, len(rows))
	for i, row := range rows {
		items[i] = data.NewsItem{
			ID:          row.ID,
			Ticker:      row.Ticker,
			Title:       row.Title,
			Body:        row.Body,
			PublishedAt: row.PublishedAt.UTC(),
		}
	}
	return items, nil
}

// InsertArticles stores articles, skipping IDs already present.
func (r *newsRepo) InsertArticles(ctx context.Context, items []data.NewsItem) error {
	if len(items) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(items)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO news_articles (id, ticker, title, body, published_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx,
			item.ID, item.Ticker, item.Title, item.Body, item.PublishedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert article %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}
