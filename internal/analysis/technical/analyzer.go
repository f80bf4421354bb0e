package technical

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
)

// Indicator windows. The key_indicators names derived from these are part
// of the rule-variable contract, so they are fixed rather than configurable.
const (
	shortWindow  = 20
	midWindow    = 50
	longWindow   = 200
	rsiPeriod    = 14
	atrPeriod    = 14
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	volumeWindow = 20
	pivotSpan    = 2
)

// Config bounds the structural outputs of the analyzer.
type Config struct {
	PivotLookback int
	MaxLevels     int
	MaxPatterns   int
}

func (c Config) withDefaults() Config {
	if c.PivotLookback <= 0 {
		c.PivotLookback = 120
	}
	if c.MaxLevels <= 0 {
		c.MaxLevels = 3
	}
	if c.MaxPatterns <= 0 {
		c.MaxPatterns = 5
	}
	return c
}

// Analyzer computes TimeframeReports. Stateless, safe for concurrent use.
type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg.withDefaults()}
}

// Analyze builds the technical report for one bar interval.
func (a *Analyzer) Analyze(f data.Frame) (*report.TimeframeReport, error) {
	if f.Empty() {
		return nil, fmt.Errorf("technical analysis needs at least one bar")
	}

	closes := f.Closes()
	highs := f.Highs()
	lows := f.Lows()
	volumes := f.Volumes()
	close := closes[len(closes)-1]

	smaShort := SMA(closes, shortWindow)
	smaMid := SMA(closes, midWindow)
	smaLong := SMA(closes, longWindow)
	rsi := RSI(closes, rsiPeriod)
	atr := ATR(highs, lows, closes, atrPeriod)
	macdLine, macdSig, macdHist := MACD(closes, macdFast, macdSlow, macdSignal)
	volAvg := SMA(volumes, volumeWindow)
	change := ChangePct(closes)

	ki := map[string]*float64{
		"close":          report.F(close),
		"change_pct_1d":  maybe(Last(change)),
		"rsi_14":         maybe(Last(rsi)),
		"macd_line":      maybe(Last(macdLine)),
		"macd_signal":    maybe(Last(macdSig)),
		"macd_histogram": maybe(Last(macdHist)),
		"sma_20":         maybe(Last(smaShort)),
		"sma_50":         maybe(Last(smaMid)),
		"sma_200":        maybe(Last(smaLong)),
		"atr_14":         maybe(Last(atr)),
	}
	if v, ok := Last(atr); ok && close != 0 {
		ki["atr_pct"] = report.F(v / close * 100)
	} else {
		ki["atr_pct"] = nil
	}
	if avg, ok := Last(volAvg); ok && avg != 0 {
		ki["volume_ratio"] = report.F(volumes[len(volumes)-1] / avg)
	} else {
		ki["volume_ratio"] = nil
	}

	sr := srLevels(f, a.cfg.PivotLookback, pivotSpan, a.cfg.MaxLevels, smaValue(smaMid), smaValue(smaLong))
	if len(sr.Supports) > 0 && close != 0 {
		ki["support_distance_pct"] = report.F((close - sr.Supports[0].Level) / close * 100)
	} else {
		ki["support_distance_pct"] = nil
	}
	if len(sr.Resistances) > 0 && close != 0 {
		ki["resistance_distance_pct"] = report.F((sr.Resistances[0].Level - close) / close * 100)
	} else {
		ki["resistance_distance_pct"] = nil
	}

	return &report.TimeframeReport{
		KeyIndicators: ki,
		Trend:         trendView(closes, smaShort, smaMid, smaLong),
		SRLevels:      sr,
		Patterns:      detectPatterns(f, smaMid, smaLong, a.cfg.MaxPatterns),
	}, nil
}

// Section assembles the technical section. Intraday is optional; an empty
// frame skips that timeframe.
func (a *Analyzer) Section(ticker string, daily, intraday data.Frame) (*report.TechnicalSection, error) {
	sec := &report.TechnicalSection{Ticker: ticker}

	d, err := a.Analyze(daily)
	if err != nil {
		return nil, fmt.Errorf("daily: %w", err)
	}
	sec.Daily = d

	if !intraday.Empty() {
		in, err := a.Analyze(intraday)
		if err != nil {
			return nil, fmt.Errorf("intraday: %w", err)
		}
		sec.Intraday = in
	}

	log.Debug().
		Str("ticker", ticker).
		Bool("intraday", sec.Intraday != nil).
		Int("patterns", len(sec.Daily.Patterns)).
		Msg("Technical section assembled")
	return sec, nil
}

// maybe converts a series lookup into the nullable form key_indicators use.
func maybe(v float64, ok bool) *float64 {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return report.F(v)
}
