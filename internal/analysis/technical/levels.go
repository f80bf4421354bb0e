package technical

import (
	"math"
	"sort"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
)

// Levels closer than this fraction of each other collapse into one.
const levelDedupePct = 0.005

type candidateLevel struct {
	level  float64
	source string
}

// srLevels collects support and resistance candidates from swing pivots and
// the long moving averages, then keeps the closest maxLevels on each side of
// the current close. Supports are strictly below the close, resistances at
// or above it.
func srLevels(f data.Frame, lookback, span, maxLevels int, smaMid, smaLong float64) report.SRLevels {
	close := f.LastClose()
	if close == 0 {
		return report.SRLevels{Supports: []report.PriceLevel{}, Resistances: []report.PriceLevel{}}
	}

	start := f.Len() - lookback
	if start < 0 {
		start = 0
	}
	window := f.Bars[start:]

	var candidates []candidateLevel
	for _, p := range pivotHighs(window, span) {
		candidates = append(candidates, candidateLevel{level: p, source: "pivot_high"})
	}
	for _, p := range pivotLows(window, span) {
		candidates = append(candidates, candidateLevel{level: p, source: "pivot_low"})
	}
	if !math.IsNaN(smaMid) {
		candidates = append(candidates, candidateLevel{level: smaMid, source: "sma_50"})
	}
	if !math.IsNaN(smaLong) {
		candidates = append(candidates, candidateLevel{level: smaLong, source: "sma_200"})
	}

	var supports, resistances []candidateLevel
	for _, c := range candidates {
		if c.level <= 0 {
			continue
		}
		if c.level < close {
			supports = append(supports, c)
		} else {
			resistances = append(resistances, c)
		}
	}

	// Nearest levels first: supports descend toward zero, resistances ascend.
	sort.Slice(supports, func(i, j int) bool { return supports[i].level > supports[j].level })
	sort.Slice(resistances, func(i, j int) bool { return resistances[i].level < resistances[j].level })

	return report.SRLevels{
		Supports:    takeLevels(supports, maxLevels),
		Resistances: takeLevels(resistances, maxLevels),
	}
}

func takeLevels(sorted []candidateLevel, max int) []report.PriceLevel {
	out := []report.PriceLevel{}
	var prev float64
	for _, c := range sorted {
		if len(out) > 0 && math.Abs(c.level-prev) <= levelDedupePct*prev {
			continue
		}
		out = append(out, report.PriceLevel{Level: c.level, Source: c.source})
		prev = c.level
		if len(out) == max {
			break
		}
	}
	return out
}

// pivotHighs returns highs that top their span neighbors on both sides.
func pivotHighs(bars []data.Bar, span int) []float64 {
	var out []float64
	for i := span; i < len(bars)-span; i++ {
		h := bars[i].High
		top := true
		for d := 1; d <= span; d++ {
			if bars[i-d].High >= h || bars[i+d].High >= h {
				top = false
				break
			}
		}
		if top {
			out = append(out, h)
		}
	}
	return out
}

func pivotLows(bars []data.Bar, span int) []float64 {
	var out []float64
	for i := span; i < len(bars)-span; i++ {
		l := bars[i].Low
		bottom := true
		for d := 1; d <= span; d++ {
			if bars[i-d].Low <= l || bars[i+d].Low <= l {
				bottom = false
				break
			}
		}
		if bottom {
			out = append(out, l)
		}
	}
	return out
}
