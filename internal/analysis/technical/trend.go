package technical

import (
	"math"

	"github.com/stockrun/stockrun/internal/domain/report"
)

// Trend thresholds in percent distance from the reference average.
const (
	trendFlatBand    = 0.1
	trendModerateGap = 2.0
	trendStrongGap   = 5.0
)

// trendView derives the three horizon calls: short is close against the
// 20-bar average, mid is close against the 50-bar, long compares the 50
// against the 200 (the golden-cross read).
func trendView(closes, smaShort, smaMid, smaLong []float64) report.TrendView {
	price, ok := lastValue(closes)
	if !ok {
		undef := undefinedCall()
		return report.TrendView{Short: undef, Mid: undef, Long: undef}
	}

	view := report.TrendView{
		Short: gapCall(price, "close", smaValue(smaShort), "sma_20"),
		Mid:   gapCall(price, "close", smaValue(smaMid), "sma_50"),
	}

	mid, midOK := Last(smaMid)
	long, longOK := Last(smaLong)
	if midOK && longOK {
		view.Long = gapCall(mid, "sma_50", long, "sma_200")
	} else {
		view.Long = undefinedCall()
	}
	return view
}

func gapCall(value float64, valueName string, ref float64, refName string) report.TrendCall {
	if math.IsNaN(ref) || ref == 0 {
		return undefinedCall()
	}
	gap := (value - ref) / ref * 100

	call := report.TrendCall{Evidence: map[string]*float64{
		valueName: report.F(value),
		refName:   report.F(ref),
		"gap_pct": report.F(gap),
	}}

	switch {
	case gap > trendFlatBand:
		call.Direction = report.TrendUp
	case gap < -trendFlatBand:
		call.Direction = report.TrendDown
	default:
		call.Direction = report.TrendUndefined
		call.Strength = report.StrengthUndefined
		return call
	}

	switch abs := math.Abs(gap); {
	case abs >= trendStrongGap:
		call.Strength = report.StrengthStrong
	case abs >= trendModerateGap:
		call.Strength = report.StrengthModerate
	default:
		call.Strength = report.StrengthWeak
	}
	return call
}

func undefinedCall() report.TrendCall {
	return report.TrendCall{Direction: report.TrendUndefined, Strength: report.StrengthUndefined}
}

func smaValue(series []float64) float64 {
	if v, ok := Last(series); ok {
		return v
	}
	return math.NaN()
}

func lastValue(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}
