package technical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, out, 5)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2, out[2], 1e-12)
	assert.InDelta(t, 3, out[3], 1e-12)
	assert.InDelta(t, 4, out[4], 1e-12)
}

func TestSMAShortInput(t *testing.T) {
	out := SMA([]float64{1, 2}, 3)
	for _, v := range out {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEMA(t *testing.T) {
	out := EMA([]float64{2, 4, 6, 8, 10}, 3)
	assert.True(t, math.IsNaN(out[1]))
	// Seeded with SMA(2,4,6)=4, alpha=0.5.
	assert.InDelta(t, 4, out[2], 1e-12)
	assert.InDelta(t, 6, out[3], 1e-12)
	assert.InDelta(t, 8, out[4], 1e-12)
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	flat := make([]float64, 30)
	for i := range up {
		up[i] = float64(i + 1)
		down[i] = float64(60 - i)
		flat[i] = 42
	}

	v, ok := Last(RSI(up, 14))
	require.True(t, ok)
	assert.InDelta(t, 100, v, 1e-9)

	v, ok = Last(RSI(down, 14))
	require.True(t, ok)
	assert.InDelta(t, 0, v, 1e-9)

	v, ok = Last(RSI(flat, 14))
	require.True(t, ok)
	assert.InDelta(t, 50, v, 1e-9)
}

func TestRSIWindow(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 100 + math.Sin(float64(i))*5
	}
	out := RSI(series, 14)
	assert.True(t, math.IsNaN(out[13]))
	for i := 14; i < len(out); i++ {
		assert.False(t, math.IsNaN(out[i]))
		assert.GreaterOrEqual(t, out[i], 0.0)
		assert.LessOrEqual(t, out[i], 100.0)
	}
}

func TestATR(t *testing.T) {
	high := []float64{10, 11, 12, 13}
	low := []float64{9, 9.5, 10.5, 11}
	close := []float64{9.5, 10.5, 11.5, 12.5}

	out := ATR(high, low, close, 3)
	assert.True(t, math.IsNaN(out[1]))
	// TRs are 1, 1.5, 1.5, 2; seed mean 4/3; then Wilder smoothing.
	assert.InDelta(t, 4.0/3, out[2], 1e-9)
	assert.InDelta(t, (4.0/3*2+2)/3, out[3], 1e-9)
}

func TestMACD(t *testing.T) {
	series := make([]float64, 60)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	line, sig, hist := MACD(series, 12, 26, 9)

	assert.True(t, math.IsNaN(line[24]))
	assert.False(t, math.IsNaN(line[25]))
	assert.True(t, math.IsNaN(sig[32]))
	assert.False(t, math.IsNaN(sig[33]))

	last := len(series) - 1
	assert.InDelta(t, line[last]-sig[last], hist[last], 1e-12)
	// A steadily rising series keeps the fast average above the slow one.
	assert.Greater(t, line[last], 0.0)
}

func TestChangePct(t *testing.T) {
	out := ChangePct([]float64{100, 110, 99})
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 10, out[1], 1e-12)
	assert.InDelta(t, -10, out[2], 1e-12)
}

func TestQuantile(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.InDelta(t, 5.5, Quantile(vals, 0.5), 1e-12)
	assert.InDelta(t, 1, Quantile(vals, 0), 1e-12)
	assert.InDelta(t, 10, Quantile(vals, 1), 1e-12)
	assert.InDelta(t, 7.3, Quantile(vals, 0.7), 1e-12)

	withNaN := []float64{math.NaN(), 1, 3, math.NaN()}
	assert.InDelta(t, 2, Quantile(withNaN, 0.5), 1e-12)

	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestLastAndAt(t *testing.T) {
	series := []float64{math.NaN(), 2, math.NaN()}

	v, ok := Last(series)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = Last([]float64{math.NaN()})
	assert.False(t, ok)

	v, ok = At(series, 1)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = At(series, 2)
	assert.False(t, ok)
	_, ok = At(series, 7)
	assert.False(t, ok)
}
