package report

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDirtyReport() *AnalysisReport {
	rep := New("AAPL", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC))
	rep.Technical = &TechnicalSection{
		Ticker: "AAPL",
		Daily: &TimeframeReport{
			KeyIndicators: map[string]*float64{
				"rsi_14":  F(61.2),
				"sma_200": F(math.NaN()),
				"atr_14":  F(math.Inf(1)),
				"macd":    nil,
			},
			Trend: TrendView{
				Short: TrendCall{
					Direction: TrendUp,
					Strength:  StrengthModerate,
					Evidence:  map[string]*float64{"slope": F(math.Inf(-1))},
				},
			},
			SRLevels: SRLevels{
				Supports:    []PriceLevel{{Level: 178.4, Source: "pivot"}},
				Resistances: []PriceLevel{{Level: 192.1, Source: "pivot"}},
			},
		},
	}
	rep.Forecasting = []TaskForecast{
		{
			TaskID:       "5d_distribution_tech",
			TaskMetadata: TaskMetadata{Kind: TaskDistribution, HorizonDays: 5},
			Prediction:   []*float64{F(0.012), F(math.NaN()), F(-0.03), nil},
			Units:        UnitsPercent,
			Evidence: []TargetExplanation{
				{
					TargetName:        "mean",
					BaseValue:         F(math.Inf(1)),
					PredictionOutcome: F(0.012),
					TopFeatures: []FeatureContribution{
						{Feature: "rsi_14", Value: F(61.2), Contribution: F(math.NaN()), Effect: EffectPositive},
					},
				},
			},
		},
	}
	rep.News = &NewsSection{
		Ticker: "AAPL",
		Articles: []ArticleReport{
			{
				ArticleID:   "a1",
				PublishedAt: time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC),
				Sentiment:   Sentiment{Label: "positive", Score: F(math.NaN())},
			},
		},
		Summary: NewsSummary{OverallLabel: "positive", OverallScore: F(0.7), ArticleCount: 1},
	}
	return rep
}

func TestSweepReplacesNonFinite(t *testing.T) {
	rep := buildDirtyReport()
	Sweep(rep)

	daily := rep.Technical.Daily
	assert.Nil(t, daily.KeyIndicators["sma_200"])
	assert.Nil(t, daily.KeyIndicators["atr_14"])
	assert.Nil(t, daily.Trend.Short.Evidence["slope"])

	fc := rep.Forecasting[0]
	assert.Nil(t, fc.Prediction[1])
	assert.Nil(t, fc.Evidence[0].BaseValue)
	assert.Nil(t, fc.Evidence[0].TopFeatures[0].Contribution)
	assert.Nil(t, rep.News.Articles[0].Sentiment.Score)
}

func TestSweepKeepsFiniteValues(t *testing.T) {
	rep := buildDirtyReport()
	Sweep(rep)

	daily := rep.Technical.Daily
	require.NotNil(t, daily.KeyIndicators["rsi_14"])
	assert.Equal(t, 61.2, *daily.KeyIndicators["rsi_14"])
	assert.Equal(t, 178.4, daily.SRLevels.Supports[0].Level)

	fc := rep.Forecasting[0]
	require.NotNil(t, fc.Prediction[0])
	assert.Equal(t, 0.012, *fc.Prediction[0])
	require.NotNil(t, rep.News.Summary.OverallScore)
	assert.Equal(t, 0.7, *rep.News.Summary.OverallScore)
}

func TestSweptReportSerializes(t *testing.T) {
	rep := buildDirtyReport()
	Sweep(rep)

	data, err := json.Marshal(rep)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "AAPL", decoded["ticker"])
}

func TestSweepNilSafe(t *testing.T) {
	Sweep(nil)

	rep := New("VOO", time.Now())
	Sweep(rep)
	assert.Nil(t, rep.Technical)
}

func TestSweepPreservesTimestamps(t *testing.T) {
	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	rep := New("AAPL", at)
	Sweep(rep)

	assert.Equal(t, at, rep.GeneratedAt)
	assert.Equal(t, at.Unix(), rep.GeneratedTS)
}

func TestFloatsHelper(t *testing.T) {
	vs := Floats(1.5, -2.5)
	require.Len(t, vs, 2)
	assert.Equal(t, 1.5, *vs[0])
	assert.Equal(t, -2.5, *vs[1])

	assert.Equal(t, 3.0, Val(F(3.0), 0))
	assert.Equal(t, 9.9, Val(nil, 9.9))
}
