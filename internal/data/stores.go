package data

import "context"

// PriceStore serves OHLCV history for a ticker.
type PriceStore interface {
	DailyOHLCV(ctx context.Context, ticker string) (Frame, error)
	IntradayOHLCV(ctx context.Context, ticker string) (Frame, error)
}

// NewsStore serves the most recent articles for a ticker, newest first.
type NewsStore interface {
	RecentArticles(ctx context.Context, ticker string, limit int) ([]NewsItem, error)
}

// SectorStore lists the ticker universe with its sector assignment.
type SectorStore interface {
	TickerSectors(ctx context.Context) (map[string]string, error)
}
