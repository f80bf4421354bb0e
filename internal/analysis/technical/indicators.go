// Package technical computes the technical-analysis section of a report:
// rolling indicators, trend calls, support/resistance levels and pattern
// detection over OHLCV frames.
package technical

import (
	"math"
	"sort"
)

// Indicator series are aligned with the input bars; positions without
// enough history hold NaN, mirroring rolling-window semantics.

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over period bars.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is the exponential moving average, seeded with the SMA of the first
// period values.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	alpha := 2 / float64(period+1)
	prev := sum / float64(period)
	out[period-1] = prev
	for i := period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// RSI is Wilder's relative strength index in [0, 100].
func RSI(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR is Wilder's average true range.
func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}
	tr := make([]float64, n)
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev
	for i := period; i < n; i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// MACD returns the MACD line (fast EMA minus slow EMA), its signal EMA and
// the histogram.
func MACD(values []float64, fast, slow, signal int) (line, sig, hist []float64) {
	n := len(values)
	line, sig, hist = nanSeries(n), nanSeries(n), nanSeries(n)
	if fast <= 0 || slow <= fast || n < slow {
		return
	}
	ef := EMA(values, fast)
	es := EMA(values, slow)
	start := slow - 1
	valid := make([]float64, 0, n-start)
	for i := start; i < n; i++ {
		line[i] = ef[i] - es[i]
		valid = append(valid, line[i])
	}
	sv := EMA(valid, signal)
	for i, v := range sv {
		if !math.IsNaN(v) {
			sig[start+i] = v
			hist[start+i] = line[start+i] - v
		}
	}
	return
}

// ChangePct is the bar-over-bar percent change.
func ChangePct(values []float64) []float64 {
	out := nanSeries(len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			out[i] = (values[i] - values[i-1]) / values[i-1] * 100
		}
	}
	return out
}

// Quantile returns the q-th quantile (0..1) of the finite values, with
// linear interpolation between order statistics.
func Quantile(values []float64, q float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	if q <= 0 {
		return finite[0]
	}
	if q >= 1 {
		return finite[len(finite)-1]
	}
	pos := q * float64(len(finite)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return finite[lo]
	}
	frac := pos - float64(lo)
	return finite[lo]*(1-frac) + finite[hi]*frac
}

// Last returns the final non-NaN value of a series.
func Last(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

// At returns the series value at index i when it is finite.
func At(series []float64, i int) (float64, bool) {
	if i < 0 || i >= len(series) || math.IsNaN(series[i]) {
		return 0, false
	}
	return series[i], true
}
