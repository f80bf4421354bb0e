package technical

import (
	"fmt"
	"math"
	"sort"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
)

// crossRecency bounds how far back a moving-average cross still counts as a
// live pattern.
const crossRecency = 10

// breakoutLookback is the prior-range window for breakout detection.
const breakoutLookback = 252

// detectPatterns runs the candlestick detectors on the final bars and the
// chart detectors on the full series. Output is ranked by score descending,
// ties broken by completion date descending.
func detectPatterns(f data.Frame, smaMid, smaLong []float64, max int) []report.Pattern {
	out := []report.Pattern{}
	out = append(out, candlestickPatterns(f)...)
	out = append(out, crossPatterns(f, smaMid, smaLong)...)
	out = append(out, breakoutPatterns(f)...)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Evidence.Date.After(out[j].Evidence.Date)
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func candlestickPatterns(f data.Frame) []report.Pattern {
	n := f.Len()
	if n == 0 {
		return nil
	}
	cur := f.Bars[n-1]
	date := cur.Time()

	body := math.Abs(cur.Close - cur.Open)
	rng := cur.High - cur.Low
	if rng <= 0 {
		return nil
	}
	upper := cur.High - math.Max(cur.Open, cur.Close)
	lower := math.Min(cur.Open, cur.Close) - cur.Low
	eps := rng * 1e-9

	var out []report.Pattern
	if lower >= 2*body && upper <= body {
		out = append(out, report.Pattern{
			Name:      "Hammer",
			Type:      report.PatternCandlestick,
			Sentiment: report.SentimentBullish,
			Score:     clampScore(55 + 35*lower/rng),
			Evidence:  report.PatternEvidence{Date: date, Note: "long lower shadow"},
		})
	}
	if upper >= 2*body && lower <= body {
		out = append(out, report.Pattern{
			Name:      "Shooting Star",
			Type:      report.PatternCandlestick,
			Sentiment: report.SentimentBearish,
			Score:     clampScore(55 + 35*upper/rng),
			Evidence:  report.PatternEvidence{Date: date, Note: "long upper shadow"},
		})
	}
	if body <= 0.1*rng {
		out = append(out, report.Pattern{
			Name:      "Doji",
			Type:      report.PatternCandlestick,
			Sentiment: report.SentimentNeutral,
			Score:     clampScore(40 + 30*(1-body/(0.1*rng+eps))),
			Evidence:  report.PatternEvidence{Date: date, Note: "open and close nearly equal"},
		})
	}

	if n >= 2 {
		prev := f.Bars[n-2]
		prevBody := math.Abs(prev.Close - prev.Open)
		if prev.Close < prev.Open && cur.Close > cur.Open &&
			cur.Open <= prev.Close && cur.Close >= prev.Open && body > prevBody {
			q := math.Min(1, (body-prevBody)/(prevBody+eps))
			out = append(out, report.Pattern{
				Name:      "Bullish Engulfing",
				Type:      report.PatternCandlestick,
				Sentiment: report.SentimentBullish,
				Score:     clampScore(65 + 25*q),
				Evidence:  report.PatternEvidence{Date: date, Note: "body engulfs prior bearish bar"},
			})
		}
		if prev.Close > prev.Open && cur.Close < cur.Open &&
			cur.Open >= prev.Close && cur.Close <= prev.Open && body > prevBody {
			q := math.Min(1, (body-prevBody)/(prevBody+eps))
			out = append(out, report.Pattern{
				Name:      "Bearish Engulfing",
				Type:      report.PatternCandlestick,
				Sentiment: report.SentimentBearish,
				Score:     clampScore(65 + 25*q),
				Evidence:  report.PatternEvidence{Date: date, Note: "body engulfs prior bullish bar"},
			})
		}
	}
	return out
}

func crossPatterns(f data.Frame, smaMid, smaLong []float64) []report.Pattern {
	n := f.Len()
	start := n - crossRecency
	if start < 1 {
		start = 1
	}
	var out []report.Pattern
	for i := start; i < n; i++ {
		m0, ok1 := At(smaMid, i-1)
		l0, ok2 := At(smaLong, i-1)
		m1, ok3 := At(smaMid, i)
		l1, ok4 := At(smaLong, i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		date := f.Bars[i].Time()
		if m0 <= l0 && m1 > l1 {
			out = append(out, report.Pattern{
				Name:      "Golden Cross",
				Type:      report.PatternChart,
				Sentiment: report.SentimentBullish,
				Score:     80,
				Evidence:  report.PatternEvidence{Date: date, Note: "50-bar average crossed above the 200-bar"},
			})
		}
		if m0 >= l0 && m1 < l1 {
			out = append(out, report.Pattern{
				Name:      "Death Cross",
				Type:      report.PatternChart,
				Sentiment: report.SentimentBearish,
				Score:     80,
				Evidence:  report.PatternEvidence{Date: date, Note: "50-bar average crossed below the 200-bar"},
			})
		}
	}
	return out
}

func breakoutPatterns(f data.Frame) []report.Pattern {
	n := f.Len()
	if n < 61 {
		return nil
	}
	start := n - 1 - breakoutLookback
	if start < 0 {
		start = 0
	}
	prior := f.Bars[start : n-1]

	hi := math.Inf(-1)
	lo := math.Inf(1)
	for _, b := range prior {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}

	cur := f.Bars[n-1]
	note := fmt.Sprintf("close beyond the prior %d-bar range", len(prior))
	if cur.Close > hi {
		return []report.Pattern{{
			Name:      "Range Breakout",
			Type:      report.PatternChart,
			Sentiment: report.SentimentBullish,
			Score:     70,
			Evidence:  report.PatternEvidence{Date: cur.Time(), Note: note},
		}}
	}
	if cur.Close < lo {
		return []report.Pattern{{
			Name:      "Range Breakdown",
			Type:      report.PatternChart,
			Sentiment: report.SentimentBearish,
			Score:     70,
			Evidence:  report.PatternEvidence{Date: cur.Time(), Note: note},
		}}
	}
	return nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return math.Round(v*10) / 10
}
