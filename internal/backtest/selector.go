package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/stockrun/stockrun/internal/analysis/technical"
	"github.com/stockrun/stockrun/internal/data"
)

// Event scores for the significant-point candidate sets. Moving-average
// crosses outrank RSI threshold crossings, which outrank volatility spikes.
const (
	scoreCross      = 1.0
	scoreRSI        = 0.8
	scoreVolatility = 0.7
)

// SelectorConfig bounds the point selector. Zero Start/End mean the whole
// frame; the remaining zero values fall back to the defaults in brackets.
type SelectorConfig struct {
	Start              time.Time `yaml:"start_date"`
	End                time.Time `yaml:"end_date"`
	DayOfMonth         int       `yaml:"day_of_month"`          // [15]
	MaxSpecialPoints   int       `yaml:"max_special_points"`    // [10]
	VolatilityQuantile float64   `yaml:"volatility_quantile"`   // [0.7]
	RecencyWeight      float64   `yaml:"recency_weight"`        // [0.3]
}

func (c SelectorConfig) withDefaults() SelectorConfig {
	if c.DayOfMonth <= 0 || c.DayOfMonth > 31 {
		c.DayOfMonth = 15
	}
	if c.MaxSpecialPoints <= 0 {
		c.MaxSpecialPoints = 10
	}
	if c.VolatilityQuantile <= 0 || c.VolatilityQuantile >= 1 {
		c.VolatilityQuantile = 0.7
	}
	if c.RecencyWeight < 0 {
		c.RecencyWeight = 0.3
	}
	return c
}

type candidate struct {
	ts    int64
	score float64
}

// SelectPoints picks the evaluation timestamps for one ticker's backtest:
// one trading day per month (the last row on or before DayOfMonth) plus the
// highest-scoring significant days, recency-boosted and capped at
// MaxSpecialPoints. The result is sorted, distinct and deterministic for
// identical inputs.
func SelectPoints(frame data.Frame, cfg SelectorConfig) []int64 {
	cfg = cfg.withDefaults()
	if frame.Empty() {
		return nil
	}

	window := frame
	if !cfg.Start.IsZero() || !cfg.End.IsZero() {
		from := int64(math.MinInt64)
		to := int64(math.MaxInt64)
		if !cfg.Start.IsZero() {
			from = cfg.Start.Unix()
		}
		if !cfg.End.IsZero() {
			to = cfg.End.Unix()
		}
		window = frame.Window(from, to)
	}
	if window.Empty() {
		return nil
	}

	picked := make(map[int64]struct{})
	for _, ts := range monthlyPoints(window, cfg.DayOfMonth) {
		picked[ts] = struct{}{}
	}
	for _, ts := range specialPoints(frame, window, cfg) {
		picked[ts] = struct{}{}
	}

	out := make([]int64, 0, len(picked))
	for ts := range picked {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// monthlyPoints floors each calendar month to the last trading day whose
// day-of-month is <= day. Months with no such row contribute nothing.
func monthlyPoints(window data.Frame, day int) []int64 {
	best := make(map[string]int64)
	order := make([]string, 0, 16)
	for _, b := range window.Bars {
		t := time.Unix(b.TS, 0).UTC()
		if t.Day() > day {
			continue
		}
		key := t.Format("2006-01")
		if _, ok := best[key]; !ok {
			order = append(order, key)
		}
		// Bars are chronological, so the last qualifying row wins.
		best[key] = b.TS
	}
	out := make([]int64, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// specialPoints scores volatility spikes, SMA 50/200 crosses and RSI 70/30
// crossings over the full frame, keeps the best score per day, applies the
// recency boost and returns the top MaxSpecialPoints inside the window.
func specialPoints(frame, window data.Frame, cfg SelectorConfig) []int64 {
	closes := frame.Closes()
	times := frame.Times()

	change := technical.ChangePct(closes)
	absChange := make([]float64, len(change))
	for i, v := range change {
		absChange[i] = math.Abs(v)
	}
	spikeFloor := technical.Quantile(absChange, cfg.VolatilityQuantile)

	sma50 := technical.SMA(closes, 50)
	sma200 := technical.SMA(closes, 200)
	rsi := technical.RSI(closes, 14)

	byDay := make(map[int64]float64)
	note := func(i int, score float64) {
		ts := times[i]
		if score > byDay[ts] {
			byDay[ts] = score
		}
	}

	for i := 1; i < len(closes); i++ {
		if !math.IsNaN(absChange[i]) && !math.IsNaN(spikeFloor) && absChange[i] >= spikeFloor {
			note(i, scoreVolatility)
		}
		if crossed(sma50, sma200, i) {
			note(i, scoreCross)
		}
		if crossedLevel(rsi, 70, i) || crossedLevel(rsi, 30, i) {
			note(i, scoreRSI)
		}
	}

	lo, hi := window.Bars[0].TS, window.Bars[len(window.Bars)-1].TS
	span := float64(hi - lo)

	cands := make([]candidate, 0, len(byDay))
	for ts, score := range byDay {
		if ts < lo || ts > hi {
			continue
		}
		norm := 0.0
		if span > 0 {
			norm = float64(ts-lo) / span
		}
		cands = append(cands, candidate{ts: ts, score: score * (1 + cfg.RecencyWeight*norm)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].ts > cands[j].ts
	})
	if len(cands) > cfg.MaxSpecialPoints {
		cands = cands[:cfg.MaxSpecialPoints]
	}

	out := make([]int64, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.ts)
	}
	return out
}

// crossed reports a sign change of fast-slow between i-1 and i.
func crossed(fast, slow []float64, i int) bool {
	a0, ok := diffAt(fast, slow, i-1)
	if !ok {
		return false
	}
	a1, ok := diffAt(fast, slow, i)
	if !ok {
		return false
	}
	return (a0 <= 0 && a1 > 0) || (a0 >= 0 && a1 < 0)
}

func diffAt(fast, slow []float64, i int) (float64, bool) {
	f, ok := technical.At(fast, i)
	if !ok {
		return 0, false
	}
	s, ok := technical.At(slow, i)
	if !ok {
		return 0, false
	}
	return f - s, true
}

// crossedLevel reports the series passing through level between i-1 and i.
func crossedLevel(series []float64, level float64, i int) bool {
	prev, ok := technical.At(series, i-1)
	if !ok {
		return false
	}
	cur, ok := technical.At(series, i)
	if !ok {
		return false
	}
	return (prev < level && cur >= level) || (prev > level && cur <= level)
}
