// Package report defines the structured analysis output shared by every
// module in the pipeline. Nullable numbers are *float64 so that JSON
// round-trips preserve null, which plain float64 cannot represent.
package report

import "time"

// Analysis module names used to tag sub-reports and failures.
const (
	ModuleTechnical   = "technical_analysis"
	ModuleForecasting = "forecasting"
	ModuleNews        = "news_analysis"
)

// Scope selects which timeframes an analysis request covers.
type Scope string

const (
	ScopeDaily    Scope = "daily"
	ScopeIntraday Scope = "intraday"
	ScopeAll      Scope = "all"
)

// TrendDirection classifies price direction over a lookback window.
type TrendDirection string

const (
	TrendUp        TrendDirection = "uptrend"
	TrendDown      TrendDirection = "downtrend"
	TrendUndefined TrendDirection = "undefined"
)

// TrendStrength grades how pronounced a trend is.
type TrendStrength string

const (
	StrengthWeak      TrendStrength = "weak"
	StrengthModerate  TrendStrength = "moderate"
	StrengthStrong    TrendStrength = "strong"
	StrengthUndefined TrendStrength = "undefined"
)

// PatternType distinguishes candlestick formations from chart formations.
type PatternType string

const (
	PatternCandlestick PatternType = "Candlestick"
	PatternChart       PatternType = "Chart"
)

// PatternSentiment is the directional reading of a detected pattern.
type PatternSentiment string

const (
	SentimentBullish PatternSentiment = "Bullish"
	SentimentBearish PatternSentiment = "Bearish"
	SentimentNeutral PatternSentiment = "Neutral"
	SentimentVaries  PatternSentiment = "Varies"
)

// ImpactLevel grades expected market impact of a news article.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactModerate ImpactLevel = "moderate"
	ImpactHigh     ImpactLevel = "high"
	ImpactUnknown  ImpactLevel = "unknown"
)

// Forecast prediction units.
const (
	UnitsPercent  = "percent"
	UnitsCategory = "category"
)

// AnalysisReport is the aggregate emitted per (ticker, as-of time). Any of
// the three module sections may be nil when the module did not run.
type AnalysisReport struct {
	Ticker      string            `json:"ticker"`
	GeneratedAt time.Time         `json:"generated_at"`
	GeneratedTS int64             `json:"generated_ts"`
	Technical   *TechnicalSection `json:"technical,omitempty"`
	Forecasting []TaskForecast    `json:"forecasting,omitempty"`
	News        *NewsSection      `json:"news,omitempty"`
}

// TechnicalSection groups per-timeframe technical reports.
type TechnicalSection struct {
	Ticker   string           `json:"ticker"`
	Daily    *TimeframeReport `json:"daily,omitempty"`
	Intraday *TimeframeReport `json:"intraday,omitempty"`
}

// TimeframeReport is the technical analysis of one bar interval.
type TimeframeReport struct {
	KeyIndicators map[string]*float64 `json:"key_indicators"`
	Trend         TrendView           `json:"trend"`
	SRLevels      SRLevels            `json:"sr_levels"`
	Patterns      []Pattern           `json:"patterns"`
}

// TrendView holds the short, mid and long horizon trend calls.
type TrendView struct {
	Short TrendCall `json:"short"`
	Mid   TrendCall `json:"mid"`
	Long  TrendCall `json:"long"`
}

// TrendCall is one horizon's direction and strength with its evidence.
type TrendCall struct {
	Direction TrendDirection      `json:"direction"`
	Strength  TrendStrength       `json:"strength"`
	Evidence  map[string]*float64 `json:"evidence,omitempty"`
}

// SRLevels carries support levels sorted descending and resistance levels
// sorted ascending, both relative to the current close.
type SRLevels struct {
	Supports    []PriceLevel `json:"supports"`
	Resistances []PriceLevel `json:"resistances"`
}

// PriceLevel is one support or resistance level and how it was derived.
type PriceLevel struct {
	Level  float64 `json:"level"`
	Source string  `json:"source"`
}

// Pattern is a detected price formation, ranked by score then recency.
type Pattern struct {
	Name      string           `json:"name"`
	Type      PatternType      `json:"type"`
	Sentiment PatternSentiment `json:"sentiment"`
	Score     float64          `json:"score"`
	Evidence  PatternEvidence  `json:"evidence"`
}

// PatternEvidence records when and where the pattern completed.
type PatternEvidence struct {
	Date time.Time `json:"date"`
	Note string    `json:"note,omitempty"`
}

// TaskForecast is one forecasting task's output for the report.
type TaskForecast struct {
	TaskID       string              `json:"task_id"`
	TaskMetadata TaskMetadata        `json:"task_metadata"`
	Prediction   []*float64          `json:"prediction"`
	Units        string              `json:"units"`
	Evidence     []TargetExplanation `json:"evidence,omitempty"`
}

// TaskMetadata describes what a forecasting task predicts. Kind selects the
// variant: "triple_barrier" carries the barrier geometry, "distribution"
// only the horizon.
type TaskMetadata struct {
	Kind          string   `json:"kind"`
	HorizonDays   int      `json:"horizon"`
	TakeProfitPct *float64 `json:"tp_pct,omitempty"`
	StopLossPct   *float64 `json:"sl_pct,omitempty"`
}

// Task metadata kinds.
const (
	TaskTripleBarrier = "triple_barrier"
	TaskDistribution  = "distribution"
)

// TargetExplanation is the attribution breakdown for one prediction target.
type TargetExplanation struct {
	TargetName        string                `json:"target_name"`
	BaseValue         *float64              `json:"base_value"`
	PredictionOutcome *float64              `json:"prediction_outcome"`
	TopFeatures       []FeatureContribution `json:"top_features"`
}

// FeatureContribution is one feature's share of a prediction.
type FeatureContribution struct {
	Feature      string   `json:"feature"`
	Value        *float64 `json:"value"`
	Contribution *float64 `json:"contribution"`
	Effect       string   `json:"effect"`
}

// Feature effect directions.
const (
	EffectPositive = "positive"
	EffectNegative = "negative"
)

// NewsSection carries per-article reports plus a roll-up summary.
type NewsSection struct {
	Ticker   string          `json:"ticker"`
	Articles []ArticleReport `json:"articles"`
	Summary  NewsSummary     `json:"summary"`
}

// ArticleReport is the NLP output for one news article.
type ArticleReport struct {
	ArticleID       string          `json:"article_id"`
	Title           string          `json:"title,omitempty"`
	PublishedAt     time.Time       `json:"published_at"`
	Sentiment       Sentiment       `json:"sentiment"`
	NER             NER             `json:"ner"`
	Impact          Impact          `json:"impact"`
	KeywordEvidence KeywordEvidence `json:"keyword_evidence"`
}

// Sentiment is a label with its model confidence.
type Sentiment struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

// NER lists the named entities recognized in an article.
type NER struct {
	Entities []Entity `json:"entities"`
}

// Entity is one recognized named entity.
type Entity struct {
	Group string `json:"group"`
	Word  string `json:"word"`
}

// Impact grades an article's expected market effect.
type Impact struct {
	Level           ImpactLevel `json:"level"`
	MatchedKeywords []string    `json:"matched_keywords,omitempty"`
}

// KeywordEvidence lists sentiment-bearing keywords found in the text.
type KeywordEvidence struct {
	Positive []string `json:"positive,omitempty"`
	Negative []string `json:"negative,omitempty"`
}

// NewsSummary rolls the per-article sentiment up to one call.
type NewsSummary struct {
	OverallLabel string   `json:"overall_label"`
	OverallScore *float64 `json:"overall_score"`
	ArticleCount int      `json:"article_count"`
}

// F returns a pointer to v. Report fields use pointer floats for null.
func F(v float64) *float64 {
	return &v
}

// Floats converts plain values into the pointer form predictions use.
func Floats(vs ...float64) []*float64 {
	out := make([]*float64, len(vs))
	for i := range vs {
		v := vs[i]
		out[i] = &v
	}
	return out
}

// Val dereferences p, falling back to def when p is nil.
func Val(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// New builds an empty report stamped with the given time.
func New(ticker string, at time.Time) *AnalysisReport {
	at = at.UTC()
	return &AnalysisReport{
		Ticker:      ticker,
		GeneratedAt: at,
		GeneratedTS: at.Unix(),
	}
}
