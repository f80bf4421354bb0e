// Package data defines the market-data model the analysis modules consume:
// OHLCV frames, news items, the store interfaces behind them, and the warm
// cache tier that sits in front of slow stores.
package data

import (
	"sort"
	"time"
)

// Bar is one OHLCV row. TS is the bar close in epoch seconds, UTC.
type Bar struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Time returns the bar close as a UTC instant.
func (b Bar) Time() time.Time { return time.Unix(b.TS, 0).UTC() }

// Frame is a time-ordered bar series for one ticker. Bars ascend by TS;
// consumers treat frames as read-only once fetched.
type Frame struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

func (f Frame) Len() int    { return len(f.Bars) }
func (f Frame) Empty() bool { return len(f.Bars) == 0 }

// Last returns the most recent bar; ok is false for an empty frame.
func (f Frame) Last() (Bar, bool) {
	if len(f.Bars) == 0 {
		return Bar{}, false
	}
	return f.Bars[len(f.Bars)-1], true
}

// LastClose returns the most recent close, 0 for an empty frame.
func (f Frame) LastClose() float64 {
	if b, ok := f.Last(); ok {
		return b.Close
	}
	return 0
}

func (f Frame) Closes() []float64 {
	out := make([]float64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.Close
	}
	return out
}

func (f Frame) Highs() []float64 {
	out := make([]float64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.High
	}
	return out
}

func (f Frame) Lows() []float64 {
	out := make([]float64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.Low
	}
	return out
}

func (f Frame) Volumes() []float64 {
	out := make([]float64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.Volume
	}
	return out
}

func (f Frame) Times() []int64 {
	out := make([]int64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.TS
	}
	return out
}

// Truncate returns the prefix of bars with TS ≤ asOf. The result shares the
// backing array, historical evaluation depends on this being cheap.
func (f Frame) Truncate(asOf int64) Frame {
	n := sort.Search(len(f.Bars), func(i int) bool { return f.Bars[i].TS > asOf })
	return Frame{Ticker: f.Ticker, Bars: f.Bars[:n]}
}

// Window returns bars with from ≤ TS ≤ to.
func (f Frame) Window(from, to int64) Frame {
	lo := sort.Search(len(f.Bars), func(i int) bool { return f.Bars[i].TS >= from })
	hi := sort.Search(len(f.Bars), func(i int) bool { return f.Bars[i].TS > to })
	return Frame{Ticker: f.Ticker, Bars: f.Bars[lo:hi]}
}

// SortBars orders bars ascending by TS in place. Stores that cannot
// guarantee order call this before returning a frame.
func (f *Frame) SortBars() {
	sort.Slice(f.Bars, func(i, j int) bool { return f.Bars[i].TS < f.Bars[j].TS })
}

// NewsItem is one raw article from the news store.
type NewsItem struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
}
