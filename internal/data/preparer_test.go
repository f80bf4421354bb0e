package data

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/errs"
)

type countingPrices struct {
	daily    int32
	intraday int32
	frame    Frame
}

func (s *countingPrices) DailyOHLCV(_ context.Context, ticker string) (Frame, error) {
	atomic.AddInt32(&s.daily, 1)
	f := s.frame
	f.Ticker = ticker
	return f, nil
}

func (s *countingPrices) IntradayOHLCV(_ context.Context, ticker string) (Frame, error) {
	atomic.AddInt32(&s.intraday, 1)
	f := s.frame
	f.Ticker = ticker
	return f, nil
}

func TestPreparerCachesDaily(t *testing.T) {
	store := &countingPrices{frame: fiveBarFrame()}
	p := NewPreparer(store, NewMemoryCache(), time.Minute)
	ctx := context.Background()

	first, err := p.Daily(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", first.Ticker)
	assert.Equal(t, 5, first.Len())

	second, err := p.Daily(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, first.Times(), second.Times())
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.daily))

	// Intraday is keyed separately.
	_, err = p.Intraday(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.intraday))
}

func TestPreparerZeroTTLSkipsCaching(t *testing.T) {
	store := &countingPrices{frame: fiveBarFrame()}
	p := NewPreparer(store, NewMemoryCache(), 0)
	ctx := context.Background()

	_, err := p.Daily(ctx, "AAPL")
	require.NoError(t, err)
	_, err = p.Daily(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&store.daily))
}

func TestPreparerEmptyFrameIsNoData(t *testing.T) {
	store := &countingPrices{}
	p := NewPreparer(store, NewMemoryCache(), time.Minute)

	_, err := p.Daily(context.Background(), "GHOST")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindNoData))
}

func TestPreparerIgnoresCorruptCacheEntry(t *testing.T) {
	store := &countingPrices{frame: fiveBarFrame()}
	cache := NewMemoryCache()
	p := NewPreparer(store, cache, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, "ohlcv:daily:AAPL", []byte("not json"), time.Minute)

	f, err := p.Daily(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5, f.Len())
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.daily))
}
