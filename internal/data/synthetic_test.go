package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticPricesDeterministic(t *testing.T) {
	s := NewSyntheticPrices()
	s.End = time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	a, err := s.DailyOHLCV(ctx, "AAPL")
	require.NoError(t, err)
	b, err := s.DailyOHLCV(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := s.DailyOHLCV(ctx, "MSFT")
	require.NoError(t, err)
	assert.NotEqual(t, a.Closes(), other.Closes())
}

func TestSyntheticPricesShape(t *testing.T) {
	s := NewSyntheticPrices()
	s.End = time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC)

	f, err := s.DailyOHLCV(context.Background(), "NVDA")
	require.NoError(t, err)
	require.Equal(t, 420, f.Len())

	prev := int64(0)
	for _, bar := range f.Bars {
		assert.Greater(t, bar.TS, prev)
		prev = bar.TS

		day := bar.Time()
		assert.NotEqual(t, time.Saturday, day.Weekday())
		assert.NotEqual(t, time.Sunday, day.Weekday())
		assert.Equal(t, 21, day.Hour())

		assert.Greater(t, bar.Low, 0.0)
		assert.GreaterOrEqual(t, bar.High, bar.Open)
		assert.GreaterOrEqual(t, bar.High, bar.Close)
		assert.LessOrEqual(t, bar.Low, bar.Open)
		assert.LessOrEqual(t, bar.Low, bar.Close)
		assert.Greater(t, bar.Volume, 0.0)
	}

	last, _ := f.Last()
	assert.Equal(t, time.Date(2025, 6, 13, 21, 0, 0, 0, time.UTC).Unix(), last.TS)
}

func TestSyntheticIntraday(t *testing.T) {
	s := NewSyntheticPrices()
	s.End = time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC) // Saturday

	f, err := s.IntradayOHLCV(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 78, f.Len())

	// Open day slides back to Friday the 13th.
	first := f.Bars[0].Time()
	assert.Equal(t, time.Friday, first.Weekday())
	assert.Equal(t, 13, first.Day())

	for i := 1; i < f.Len(); i++ {
		assert.Equal(t, int64(300), f.Bars[i].TS-f.Bars[i-1].TS)
	}
}

func TestSyntheticNews(t *testing.T) {
	s := &SyntheticNews{Now: time.Date(2025, 6, 13, 12, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	a, err := s.RecentArticles(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, a, 5)

	b, err := s.RecentArticles(ctx, "AAPL", 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	for i, item := range a {
		assert.Equal(t, "AAPL", item.Ticker)
		assert.Contains(t, item.Title, "AAPL")
		assert.NotEmpty(t, item.ID)
		if i > 0 {
			assert.True(t, item.PublishedAt.Before(a[i-1].PublishedAt))
		}
	}
}

func TestSyntheticUniverse(t *testing.T) {
	u := &SyntheticUniverse{}
	m, err := u.TickerSectors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "technology", m["AAPL"])
	assert.GreaterOrEqual(t, len(m), 10)

	custom := &SyntheticUniverse{Assignments: map[string]string{"ZZZ": "misc"}}
	m, err = custom.TickerSectors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ZZZ": "misc"}, m)
}
