package forecast

import (
	"math"

	"github.com/stockrun/stockrun/internal/analysis/technical"
	"github.com/stockrun/stockrun/internal/data"
)

// FeatureRow is one model input row keyed by feature name. Alignment to a
// kernel's declared feature order happens at predict time, so rows can be
// built without knowing which model will consume them.
type FeatureRow map[string]float64

// TimedRow is a feature row stamped with the bar-close time it describes.
// Base carries that bar's close for de-normalizing processors.
type TimedRow struct {
	TS   int64
	Base float64
	Row  FeatureRow
}

// CanonicalFeatures lists the model features in training order. The
// synthetic artifact store fabricates kernels over this list; real bundles
// carry their own.
var CanonicalFeatures = []string{
	"return_1d_pct",
	"return_5d_pct",
	"return_20d_pct",
	"rsi_14",
	"macd_histogram",
	"sma_20_gap_pct",
	"sma_50_gap_pct",
	"sma_200_gap_pct",
	"atr_pct",
	"volume_ratio",
	"range_position_20d",
}

// featureSeries holds the rolling series one frame's rows read from.
type featureSeries struct {
	closes  []float64
	change  []float64
	rsi     []float64
	hist    []float64
	sma20   []float64
	sma50   []float64
	sma200  []float64
	atr     []float64
	volAvg  []float64
	volumes []float64
	highs   []float64
	lows    []float64
}

func buildSeries(f data.Frame) featureSeries {
	closes := f.Closes()
	_, _, hist := technical.MACD(closes, 12, 26, 9)
	return featureSeries{
		closes:  closes,
		change:  technical.ChangePct(closes),
		rsi:     technical.RSI(closes, 14),
		hist:    hist,
		sma20:   technical.SMA(closes, 20),
		sma50:   technical.SMA(closes, 50),
		sma200:  technical.SMA(closes, 200),
		atr:     technical.ATR(f.Highs(), f.Lows(), closes, 14),
		volAvg:  technical.SMA(f.Volumes(), 20),
		volumes: f.Volumes(),
		highs:   f.Highs(),
		lows:    f.Lows(),
	}
}

// rowAt reads the features for bar index i. Values the window cannot supply
// yet stay absent; predict fills absent features with the kernel's means.
func (s featureSeries) rowAt(i int) FeatureRow {
	row := make(FeatureRow, len(CanonicalFeatures))
	close := s.closes[i]

	put := func(name string, v float64, ok bool) {
		if ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			row[name] = v
		}
	}
	gap := func(sma []float64) (float64, bool) {
		v, ok := technical.At(sma, i)
		if !ok || v == 0 {
			return 0, false
		}
		return (close - v) / v * 100, true
	}
	retPct := func(lag int) (float64, bool) {
		j := i - lag
		if j < 0 || s.closes[j] == 0 {
			return 0, false
		}
		return (close - s.closes[j]) / s.closes[j] * 100, true
	}

	v, ok := technical.At(s.change, i)
	put("return_1d_pct", v, ok)
	v, ok = retPct(5)
	put("return_5d_pct", v, ok)
	v, ok = retPct(20)
	put("return_20d_pct", v, ok)
	v, ok = technical.At(s.rsi, i)
	put("rsi_14", v, ok)
	v, ok = technical.At(s.hist, i)
	put("macd_histogram", v, ok)
	v, ok = gap(s.sma20)
	put("sma_20_gap_pct", v, ok)
	v, ok = gap(s.sma50)
	put("sma_50_gap_pct", v, ok)
	v, ok = gap(s.sma200)
	put("sma_200_gap_pct", v, ok)
	if v, ok = technical.At(s.atr, i); ok && close != 0 {
		put("atr_pct", v/close*100, true)
	}
	if v, ok = technical.At(s.volAvg, i); ok && v != 0 {
		put("volume_ratio", s.volumes[i]/v, true)
	}
	if lo, hi, ok := window20(s.highs, s.lows, i); ok && hi > lo {
		put("range_position_20d", (close-lo)/(hi-lo), true)
	}
	return row
}

func window20(highs, lows []float64, i int) (lo, hi float64, ok bool) {
	start := i - 19
	if start < 0 {
		return 0, 0, false
	}
	lo, hi = lows[start], highs[start]
	for j := start + 1; j <= i; j++ {
		if lows[j] < lo {
			lo = lows[j]
		}
		if highs[j] > hi {
			hi = highs[j]
		}
	}
	return lo, hi, true
}

// BuildFeatures computes the feature row for the frame's final bar.
func BuildFeatures(f data.Frame) FeatureRow {
	if f.Empty() {
		return FeatureRow{}
	}
	return buildSeries(f).rowAt(f.Len() - 1)
}

// BuildFeatureHistory computes one timed row per bar at or after fromTS.
// Series are computed once over the whole frame, so each row reads the same
// values an as-of truncation would have produced.
func BuildFeatureHistory(f data.Frame, fromTS int64) []TimedRow {
	if f.Empty() {
		return nil
	}
	s := buildSeries(f)
	out := make([]TimedRow, 0, f.Len())
	for i, b := range f.Bars {
		if b.TS < fromTS {
			continue
		}
		out = append(out, TimedRow{TS: b.TS, Base: b.Close, Row: s.rowAt(i)})
	}
	return out
}

// AlignRow orders row values by the kernel's feature list. Missing features
// fall back to the matching mean when one is known, else zero.
func AlignRow(row FeatureRow, features []string, means []float64) []float64 {
	out := make([]float64, len(features))
	for i, name := range features {
		if v, ok := row[name]; ok {
			out[i] = v
			continue
		}
		if i < len(means) {
			out[i] = means[i]
		}
	}
	return out
}
