package data

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/errs"
)

// Preparer fetches OHLCV through the warm cache so a request's fan-out and
// closely spaced requests share one store read. Only non-empty frames are
// cached; an empty series is NO_DATA.
type Preparer struct {
	prices PriceStore
	cache  ByteCache
	ttl    time.Duration
}

// NewPreparer wires a price store behind the cache tier. A zero ttl
// disables caching writes.
func NewPreparer(prices PriceStore, cache ByteCache, ttl time.Duration) *Preparer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Preparer{prices: prices, cache: cache, ttl: ttl}
}

// Daily returns the daily frame for the ticker.
func (p *Preparer) Daily(ctx context.Context, ticker string) (Frame, error) {
	return p.fetch(ctx, "ohlcv:daily:", ticker, p.prices.DailyOHLCV)
}

// Intraday returns the intraday frame for the ticker.
func (p *Preparer) Intraday(ctx context.Context, ticker string) (Frame, error) {
	return p.fetch(ctx, "ohlcv:intraday:", ticker, p.prices.IntradayOHLCV)
}

func (p *Preparer) fetch(ctx context.Context, prefix, ticker string, load func(context.Context, string) (Frame, error)) (Frame, error) {
	ticker = strings.ToUpper(ticker)
	key := prefix + ticker

	if raw, ok := p.cache.Get(ctx, key); ok {
		var f Frame
		if err := json.Unmarshal(raw, &f); err == nil {
			return f, nil
		}
		log.Warn().Str("key", key).Msg("Dropping undecodable cached frame")
	}

	f, err := load(ctx, ticker)
	if err != nil {
		return Frame{}, err
	}
	if f.Empty() {
		return Frame{}, errs.NoData("no OHLCV for %s", ticker)
	}
	f.Ticker = ticker
	f.SortBars()

	if p.ttl > 0 {
		if raw, err := json.Marshal(f); err == nil {
			p.cache.Set(ctx, key, raw, p.ttl)
		}
	}
	return f, nil
}
