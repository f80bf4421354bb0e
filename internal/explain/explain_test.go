package explain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/advisor"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/rules"
)

func fixtureReport() *report.AnalysisReport {
	rep := report.New("AAPL", time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	rep.Technical = &report.TechnicalSection{
		Ticker: "AAPL",
		Daily: &report.TimeframeReport{
			KeyIndicators: map[string]*float64{
				"rsi_14": report.F(61.2),
				"atr_14": report.F(3.4),
			},
			Trend: report.TrendView{
				Short: report.TrendCall{Direction: report.TrendUp, Strength: report.StrengthStrong},
				Mid:   report.TrendCall{Direction: report.TrendUp, Strength: report.StrengthModerate},
				Long:  report.TrendCall{Direction: report.TrendUndefined, Strength: report.StrengthUndefined},
			},
			SRLevels: report.SRLevels{
				Supports:    []report.PriceLevel{{Level: 180.5, Source: "swing_low"}},
				Resistances: []report.PriceLevel{{Level: 195.25, Source: "swing_high"}},
			},
			Patterns: []report.Pattern{{
				Name:      "Hammer",
				Type:      report.PatternCandlestick,
				Sentiment: report.SentimentBullish,
				Score:     0.8,
				Evidence:  report.PatternEvidence{Date: time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)},
			}},
		},
	}
	rep.Forecasting = []report.TaskForecast{{
		TaskID:       "tb-5d",
		TaskMetadata: report.TaskMetadata{Kind: report.TaskTripleBarrier, HorizonDays: 5, TakeProfitPct: report.F(3), StopLossPct: report.F(2)},
		Prediction:   report.Floats(0.2, 0.3, 0.5),
		Units:        report.UnitsCategory,
		Evidence: []report.TargetExplanation{{
			TargetName:        "up",
			BaseValue:         report.F(0.33),
			PredictionOutcome: report.F(0.5),
			TopFeatures: []report.FeatureContribution{{
				Feature: "rsi_14", Value: report.F(61.2), Contribution: report.F(0.12), Effect: report.EffectPositive,
			}},
		}},
	}}
	rep.News = &report.NewsSection{
		Ticker: "AAPL",
		Articles: []report.ArticleReport{{
			ArticleID:   "a1",
			Title:       "Apple beats estimates",
			PublishedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			Sentiment:   report.Sentiment{Label: "positive", Score: report.F(0.9)},
			Impact:      report.Impact{Level: report.ImpactHigh, MatchedKeywords: []string{"earnings"}},
		}},
		Summary: report.NewsSummary{OverallLabel: "positive", OverallScore: report.F(0.9), ArticleCount: 1},
	}
	return rep
}

func TestReportRendersAllSections(t *testing.T) {
	text, err := Report(fixtureReport(), KindAll)
	require.NoError(t, err)

	assert.Contains(t, text, "# Analysis Report: AAPL")
	assert.Contains(t, text, "## Technical Analysis")
	assert.Contains(t, text, "| rsi_14 | 61.2000 |")
	assert.Contains(t, text, "**Supports**: 180.50 (swing_low)")
	assert.Contains(t, text, "Hammer (Candlestick, Bullish, score 0.80")
	assert.Contains(t, text, "## Forecasting")
	assert.Contains(t, text, "### Task tb-5d")
	assert.Contains(t, text, "0.2000, 0.3000, 0.5000")
	assert.Contains(t, text, "| rsi_14 | 61.2000 | 0.1200 | positive |")
	assert.Contains(t, text, "## News Analysis")
	assert.Contains(t, text, "Apple beats estimates")
	assert.Contains(t, text, "keywords: earnings")
}

func TestReportSingleKindOmitsOthers(t *testing.T) {
	text, err := Report(fixtureReport(), KindNews)
	require.NoError(t, err)

	assert.Contains(t, text, "## News Analysis")
	assert.NotContains(t, text, "## Technical Analysis")
	assert.NotContains(t, text, "## Forecasting")
}

func TestReportDefaultsToAll(t *testing.T) {
	text, err := Report(fixtureReport(), "")
	require.NoError(t, err)
	assert.Contains(t, text, "## Technical Analysis")
	assert.Contains(t, text, "## News Analysis")
}

func TestReportRejectsUnknownKind(t *testing.T) {
	_, err := Report(fixtureReport(), "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestReportMissingSections(t *testing.T) {
	rep := report.New("MSFT", time.Now())
	text, err := Report(rep, KindAll)
	require.NoError(t, err)
	assert.Contains(t, text, "No technical section")
	assert.Contains(t, text, "No forecasting section")
	assert.Contains(t, text, "No news section")
}

func TestAdvisorRendersRecommendations(t *testing.T) {
	rep := &advisor.Report{
		Ticker:      "AAPL",
		UserID:      "u-1",
		GeneratedAt: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
		Recommendations: []advisor.FinalRecommendation{
			{
				Purpose:        semantic.PurposeDecisionSignal,
				FinalScore:     0.42,
				Label:          "Buy",
				Recommendation: "Open or add to a position.",
				TriggeredRules: []advisor.TriggeredRule{{RuleID: "seed-rsi-reversal", Name: "RSI reversal", RawScore: 1}},
			},
			{
				Purpose:    semantic.PurposeRiskLevel,
				FinalScore: 0.2,
				Label:      "Low",
			},
		},
	}

	text := Advisor(rep)
	assert.Contains(t, text, "# Advisory Report: AAPL")
	assert.Contains(t, text, "**User**: u-1")
	assert.Contains(t, text, "- **Score**: 0.4200")
	assert.Contains(t, text, "| RSI reversal (seed-rsi-reversal) | 1.0000 |")
	assert.Contains(t, text, "No rules fired for this purpose.")
}

func TestRuleRendersTree(t *testing.T) {
	seeds, err := rules.SeedRules(rules.BuiltinRegistry())
	require.NoError(t, err)

	var rsi *rules.Rule
	for _, r := range seeds {
		if r.ID == "seed-rsi-reversal" {
			rsi = r
		}
	}
	require.NotNil(t, rsi)

	text := Rule(rsi)
	assert.Contains(t, text, "# Rule: RSI reversal")
	assert.Contains(t, text, "- **ID**: seed-rsi-reversal")
	assert.Contains(t, text, "- **Purpose**: DECISION_SIGNAL")
	assert.Contains(t, text, "- **Tree hash**: ")
	assert.Contains(t, text, "IF_SIGNAL")
	// Children indent one level deeper than their parent.
	assert.Contains(t, text, "\n  LESS_THAN")
	assert.Contains(t, text, "\n    RSI_DAILY")
}