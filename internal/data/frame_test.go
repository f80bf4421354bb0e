package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveBarFrame() Frame {
	return Frame{Ticker: "AAPL", Bars: []Bar{
		{TS: 100, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
		{TS: 200, Open: 10.5, High: 12, Low: 10, Close: 11, Volume: 1100},
		{TS: 300, Open: 11, High: 11.5, Low: 10.5, Close: 10.8, Volume: 900},
		{TS: 400, Open: 10.8, High: 11.2, Low: 10.2, Close: 11.1, Volume: 1200},
		{TS: 500, Open: 11.1, High: 11.8, Low: 11, Close: 11.6, Volume: 1300},
	}}
}

func TestFrameTruncate(t *testing.T) {
	f := fiveBarFrame()

	assert.Equal(t, 3, f.Truncate(300).Len())
	assert.Equal(t, 3, f.Truncate(399).Len())
	assert.Equal(t, 5, f.Truncate(500).Len())
	assert.Equal(t, 5, f.Truncate(9999).Len())
	assert.Equal(t, 0, f.Truncate(99).Len())

	cut := f.Truncate(300)
	assert.Equal(t, "AAPL", cut.Ticker)
	assert.Equal(t, 10.8, cut.LastClose())
}

func TestFrameWindow(t *testing.T) {
	f := fiveBarFrame()

	w := f.Window(200, 400)
	require.Equal(t, 3, w.Len())
	assert.Equal(t, int64(200), w.Bars[0].TS)
	assert.Equal(t, int64(400), w.Bars[2].TS)

	assert.Equal(t, 0, f.Window(600, 700).Len())
}

func TestFrameAccessors(t *testing.T) {
	f := fiveBarFrame()

	assert.Equal(t, []float64{10.5, 11, 10.8, 11.1, 11.6}, f.Closes())
	assert.Equal(t, []int64{100, 200, 300, 400, 500}, f.Times())
	assert.Equal(t, 11.6, f.LastClose())

	last, ok := f.Last()
	require.True(t, ok)
	assert.Equal(t, int64(500), last.TS)

	var empty Frame
	assert.True(t, empty.Empty())
	assert.Equal(t, 0.0, empty.LastClose())
	_, ok = empty.Last()
	assert.False(t, ok)
}

func TestFrameSortBars(t *testing.T) {
	f := Frame{Bars: []Bar{{TS: 300}, {TS: 100}, {TS: 200}}}
	f.SortBars()
	assert.Equal(t, []int64{100, 200, 300}, f.Times())
}
