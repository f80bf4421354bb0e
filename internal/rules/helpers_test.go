package rules

import (
	"time"

	"github.com/stockrun/stockrun/internal/domain/report"
)

// testReport builds a fully populated report with values every catalog
// variable can resolve.
func testReport() *report.AnalysisReport {
	rep := report.New("AAPL", time.Date(2025, 3, 10, 21, 0, 0, 0, time.UTC))
	rep.Technical = &report.TechnicalSection{
		Ticker: "AAPL",
		Daily: &report.TimeframeReport{
			KeyIndicators: map[string]*float64{
				"rsi_14":                  report.F(25),
				"macd_histogram":          report.F(0.8),
				"atr_pct":                 report.F(4.0),
				"volume_ratio":            report.F(1.4),
				"support_distance_pct":    report.F(2.5),
				"resistance_distance_pct": report.F(3.8),
			},
			Trend: report.TrendView{
				Short: report.TrendCall{Direction: report.TrendUp, Strength: report.StrengthStrong},
				Mid:   report.TrendCall{Direction: report.TrendUp, Strength: report.StrengthModerate},
				Long:  report.TrendCall{Direction: report.TrendDown, Strength: report.StrengthWeak},
			},
			SRLevels: report.SRLevels{
				Supports:    []report.PriceLevel{{Level: 178.4, Source: "pivot"}},
				Resistances: []report.PriceLevel{{Level: 190.2, Source: "pivot"}},
			},
			Patterns: []report.Pattern{
				{Name: "Hammer", Type: report.PatternCandlestick, Sentiment: report.SentimentBullish, Score: 68},
				{Name: "Doji", Type: report.PatternCandlestick, Sentiment: report.SentimentNeutral, Score: 41},
			},
		},
	}
	rep.Forecasting = []report.TaskForecast{
		{
			TaskID:       "tb_5d",
			TaskMetadata: report.TaskMetadata{Kind: report.TaskTripleBarrier, HorizonDays: 5},
			Prediction:   report.Floats(0.2, 0.3, 0.5),
			Units:        report.UnitsCategory,
		},
		{
			TaskID:       "dist_5d",
			TaskMetadata: report.TaskMetadata{Kind: report.TaskDistribution, HorizonDays: 5},
			Prediction:   report.Floats(1.8, 2.2, -3.0, 6.5, 0.4, 3.1),
			Units:        report.UnitsPercent,
		},
		{
			TaskID:       "dist_20d",
			TaskMetadata: report.TaskMetadata{Kind: report.TaskDistribution, HorizonDays: 20},
			Prediction:   report.Floats(3.5, 4.1, -6.0, 12.0, 1.0, 6.2),
			Units:        report.UnitsPercent,
		},
	}
	rep.News = &report.NewsSection{
		Ticker: "AAPL",
		Articles: []report.ArticleReport{
			{
				ArticleID:   "a1",
				PublishedAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
				Sentiment:   report.Sentiment{Label: "positive", Score: report.F(0.81)},
				Impact:      report.Impact{Level: report.ImpactHigh, MatchedKeywords: []string{"earnings"}},
			},
		},
		Summary: report.NewsSummary{OverallLabel: "positive", OverallScore: report.F(0.42), ArticleCount: 3},
	}
	return rep
}
