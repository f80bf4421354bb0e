package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/data"
)

func syntheticFrame(t *testing.T) data.Frame {
	t.Helper()
	prices := data.NewSyntheticPrices()
	prices.End = time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	f, err := prices.DailyOHLCV(context.Background(), "AAPL")
	require.NoError(t, err)
	return f
}

func TestBuildFeaturesCoversCanonicalSet(t *testing.T) {
	f := syntheticFrame(t)
	row := BuildFeatures(f)

	for _, name := range CanonicalFeatures {
		_, ok := row[name]
		assert.True(t, ok, "feature %s missing with full history", name)
	}
	assert.GreaterOrEqual(t, row["rsi_14"], 0.0)
	assert.LessOrEqual(t, row["rsi_14"], 100.0)
	assert.GreaterOrEqual(t, row["range_position_20d"], 0.0)
	assert.LessOrEqual(t, row["range_position_20d"], 1.0)
}

func TestBuildFeaturesShortHistoryOmitsSlowFeatures(t *testing.T) {
	f := syntheticFrame(t)
	short := data.Frame{Ticker: f.Ticker, Bars: f.Bars[:10]}

	row := BuildFeatures(short)
	_, ok := row["sma_200_gap_pct"]
	assert.False(t, ok)
	_, ok = row["rsi_14"]
	assert.False(t, ok)
	_, ok = row["return_5d_pct"]
	assert.True(t, ok)
}

func TestBuildFeatureHistoryMatchesBars(t *testing.T) {
	f := syntheticFrame(t)
	from := f.Bars[f.Len()-30].TS

	rows := BuildFeatureHistory(f, from)
	require.Len(t, rows, 30)
	for i, r := range rows {
		bar := f.Bars[f.Len()-30+i]
		assert.Equal(t, bar.TS, r.TS)
		assert.Equal(t, bar.Close, r.Base)
		assert.NotEmpty(t, r.Row)
	}

	// The final history row equals the as-of row for the full frame.
	last := BuildFeatures(f)
	assert.Equal(t, last, rows[len(rows)-1].Row)
}

func TestAlignRow(t *testing.T) {
	row := FeatureRow{"a": 1, "c": 3}
	aligned := AlignRow(row, []string{"a", "b", "c"}, []float64{9, 8, 7})
	assert.Equal(t, []float64{1, 8, 3}, aligned)

	// Without means, gaps become zero.
	aligned = AlignRow(row, []string{"a", "b", "c"}, nil)
	assert.Equal(t, []float64{1, 0, 3}, aligned)
}
