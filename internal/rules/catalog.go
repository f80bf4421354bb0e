package rules

import (
	"fmt"

	"github.com/stockrun/stockrun/internal/domain/semantic"
)

// Prediction vector layouts emitted by the forecasting tasks. Variables
// below index into these, so the coordinator keeps task order stable.
const (
	// Triple barrier classes: [p_down, p_flat, p_up].
	TBDownIdx = 0
	TBFlatIdx = 1
	TBUpIdx   = 2

	// Distribution targets: [mean, std, min, max, q25, q75].
	DistMeanIdx = 0
	DistStdIdx  = 1
	DistMinIdx  = 2
	DistMaxIdx  = 3
	DistQ25Idx  = 4
	DistQ75Idx  = 5
)

// BuiltinRegistry builds the process-wide node catalog. Registration
// panics on conflicts, which only happen from a programming mistake.
func BuiltinRegistry() *Registry {
	reg := NewRegistry()
	registerOperators(reg)
	registerConstants(reg)
	registerVariables(reg)
	return reg
}

func registerOperators(reg *Registry) {
	numeric1 := []semantic.Type{semantic.AnyNumeric}
	numeric2 := []semantic.Type{semantic.AnyNumeric, semantic.AnyNumeric}

	reg.MustRegister(Spec{
		Name: "ADD", Description: "Sum of all children.",
		Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: numeric1, Variadic: true,
		Func: func(args []float64) (float64, error) {
			var s float64
			for _, a := range args {
				s += a
			}
			return s, nil
		},
	})
	reg.MustRegister(Spec{
		Name: "MULTIPLY", Description: "Product of all children.",
		Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: numeric1, Variadic: true,
		Func: func(args []float64) (float64, error) {
			p := 1.0
			for _, a := range args {
				p *= a
			}
			return p, nil
		},
	})
	reg.MustRegister(Spec{
		Name: "NEGATE", Description: "Sign inversion of the child.",
		Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: numeric1,
		Func: func(args []float64) (float64, error) {
			return -args[0], nil
		},
	})
	reg.MustRegister(Spec{
		Name: "ABS", Description: "Absolute value of the child.",
		Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: numeric1,
		Func: func(args []float64) (float64, error) {
			if args[0] < 0 {
				return -args[0], nil
			}
			return args[0], nil
		},
	})
	reg.MustRegister(Spec{
		Name: "MEAN", Description: "Arithmetic mean of all children.",
		Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: numeric1, Variadic: true,
		Func: func(args []float64) (float64, error) {
			if len(args) == 0 {
				return 0, fmt.Errorf("mean of no values")
			}
			var s float64
			for _, a := range args {
				s += a
			}
			return s / float64(len(args)), nil
		},
	})
	reg.MustRegister(Spec{
		Name: "MAX", Description: "Largest child value.",
		Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: numeric1, Variadic: true,
		Func: func(args []float64) (float64, error) {
			m := args[0]
			for _, a := range args[1:] {
				if a > m {
					m = a
				}
			}
			return m, nil
		},
	})
	reg.MustRegister(Spec{
		Name: "MIN", Description: "Smallest child value.",
		Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: numeric1, Variadic: true,
		Func: func(args []float64) (float64, error) {
			m := args[0]
			for _, a := range args[1:] {
				if a < m {
					m = a
				}
			}
			return m, nil
		},
	})

	reg.MustRegister(Spec{
		Name: "GREATER_THAN", Description: "1 when the first child exceeds the second, else 0.",
		Kind: KindOperator, ReturnType: semantic.Boolean,
		ArgsType: numeric2,
		Func: func(args []float64) (float64, error) {
			if args[0] > args[1] {
				return 1, nil
			}
			return 0, nil
		},
	})
	reg.MustRegister(Spec{
		Name: "LESS_THAN", Description: "1 when the first child is below the second, else 0.",
		Kind: KindOperator, ReturnType: semantic.Boolean,
		ArgsType: numeric2,
		Func: func(args []float64) (float64, error) {
			if args[0] < args[1] {
				return 1, nil
			}
			return 0, nil
		},
	})
	reg.MustRegister(Spec{
		Name: "BETWEEN", Description: "1 when the first child lies in [second, third].",
		Kind: KindOperator, ReturnType: semantic.Boolean,
		ArgsType: []semantic.Type{semantic.AnyNumeric, semantic.AnyNumeric, semantic.AnyNumeric},
		Func: func(args []float64) (float64, error) {
			if args[0] >= args[1] && args[0] <= args[2] {
				return 1, nil
			}
			return 0, nil
		},
	})
	reg.MustRegister(Spec{
		Name: "AND", Description: "1 when every child is strictly positive.",
		Kind: KindOperator, ReturnType: semantic.Boolean,
		ArgsType: []semantic.Type{semantic.Boolean}, Variadic: true,
		Func: func(args []float64) (float64, error) {
			for _, a := range args {
				if a <= 0 {
					return 0, nil
				}
			}
			return 1, nil
		},
	})
	reg.MustRegister(Spec{
		Name: "OR", Description: "1 when any child is strictly positive.",
		Kind: KindOperator, ReturnType: semantic.Boolean,
		ArgsType: []semantic.Type{semantic.Boolean}, Variadic: true,
		Func: func(args []float64) (float64, error) {
			for _, a := range args {
				if a > 0 {
					return 1, nil
				}
			}
			return 0, nil
		},
	})
	reg.MustRegister(Spec{
		Name: "NOT", Description: "Boolean inversion of the child.",
		Kind: KindOperator, ReturnType: semantic.Boolean,
		ArgsType: []semantic.Type{semantic.Boolean},
		Func: func(args []float64) (float64, error) {
			if args[0] > 0 {
				return 0, nil
			}
			return 1, nil
		},
	})

	// Purpose shaping operators take ANY so risk and opportunity inputs can
	// feed back into trees of the same purpose.
	any1 := []semantic.Type{semantic.Any}

	reg.MustRegister(Spec{
		Name: "SIGNAL_BLEND", Description: "Mean of children clamped into the decision range.",
		Kind: KindOperator, ReturnType: semantic.DecisionSignal,
		ArgsType: any1, Variadic: true,
		Func: func(args []float64) (float64, error) {
			var s float64
			for _, a := range args {
				s += a
			}
			return Clamp(s/float64(len(args)), -1, 1), nil
		},
	})
	reg.MustRegister(Spec{
		Name: "SIGNAL_CLAMP", Description: "Child clamped into [-1, 1].",
		Kind: KindOperator, ReturnType: semantic.DecisionSignal,
		ArgsType: any1,
		Func: func(args []float64) (float64, error) {
			return Clamp(args[0], -1, 1), nil
		},
	})
	reg.MustRegister(Spec{
		Name: "RISK_PEAK", Description: "Largest child clamped into [0, 1].",
		Kind: KindOperator, ReturnType: semantic.RiskLevel,
		ArgsType: any1, Variadic: true,
		Func: func(args []float64) (float64, error) {
			m := args[0]
			for _, a := range args[1:] {
				if a > m {
					m = a
				}
			}
			return Clamp(m, 0, 1), nil
		},
	})
	reg.MustRegister(Spec{
		Name: "RISK_CLAMP", Description: "Child clamped into [0, 1] as a risk level.",
		Kind: KindOperator, ReturnType: semantic.RiskLevel,
		ArgsType: any1,
		Func: func(args []float64) (float64, error) {
			return Clamp(args[0], 0, 1), nil
		},
	})
	reg.MustRegister(Spec{
		Name: "OPPORTUNITY_FLOOR", Description: "Smallest child clamped into [0, 1].",
		Kind: KindOperator, ReturnType: semantic.OpportunityRating,
		ArgsType: any1, Variadic: true,
		Func: func(args []float64) (float64, error) {
			m := args[0]
			for _, a := range args[1:] {
				if a < m {
					m = a
				}
			}
			return Clamp(m, 0, 1), nil
		},
	})
	reg.MustRegister(Spec{
		Name: "OPPORTUNITY_CLAMP", Description: "Child clamped into [0, 1] as an opportunity rating.",
		Kind: KindOperator, ReturnType: semantic.OpportunityRating,
		ArgsType: any1,
		Func: func(args []float64) (float64, error) {
			return Clamp(args[0], 0, 1), nil
		},
	})

	condArgs := []semantic.Type{semantic.Boolean, semantic.Any, semantic.Any}
	reg.MustRegister(Spec{
		Name: "IF_VALUE", Description: "Second child when the first is positive, else the third.",
		Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: condArgs, Conditional: true,
	})
	reg.MustRegister(Spec{
		Name: "IF_SIGNAL", Description: "Conditional decision signal.",
		Kind: KindOperator, ReturnType: semantic.DecisionSignal,
		ArgsType: condArgs, Conditional: true,
	})
	reg.MustRegister(Spec{
		Name: "IF_RISK", Description: "Conditional risk level.",
		Kind: KindOperator, ReturnType: semantic.RiskLevel,
		ArgsType: condArgs, Conditional: true,
	})
	reg.MustRegister(Spec{
		Name: "IF_OPPORTUNITY", Description: "Conditional opportunity rating.",
		Kind: KindOperator, ReturnType: semantic.OpportunityRating,
		ArgsType: condArgs, Conditional: true,
	})
}

func constSpec(name, desc string, rt semantic.Type, value float64) Spec {
	return Spec{
		Name: name, Description: desc,
		Kind: KindConstant, ReturnType: rt,
		DefaultParams: Params{"value": value},
		ParamNames:    []string{"value", "source_range", "target_range"},
	}
}

func registerConstants(reg *Registry) {
	reg.MustRegister(constSpec("ZERO", "Constant 0.", semantic.Numerical, 0))
	reg.MustRegister(constSpec("ONE", "Constant 1.", semantic.Numerical, 1))
	reg.MustRegister(constSpec("NEG_ONE", "Constant -1.", semantic.Numerical, -1))
	reg.MustRegister(constSpec("HALF", "Constant 0.5.", semantic.Numerical, 0.5))
	reg.MustRegister(constSpec("RSI_OVERBOUGHT", "RSI overbought threshold.", semantic.Momentum, 70))
	reg.MustRegister(constSpec("RSI_OVERSOLD", "RSI oversold threshold.", semantic.Momentum, 30))
	reg.MustRegister(constSpec("PROB_EDGE", "Probability edge over an even three-way split.", semantic.ForecastProb, 0.45))
	reg.MustRegister(constSpec("SIGNAL_NEUTRAL", "Neutral decision signal.", semantic.DecisionSignal, 0))
	reg.MustRegister(constSpec("SIGNAL_FULL_BUY", "Strongest buy signal.", semantic.DecisionSignal, 1))
	reg.MustRegister(constSpec("SIGNAL_FULL_SELL", "Strongest sell signal.", semantic.DecisionSignal, -1))
	reg.MustRegister(constSpec("RISK_MINIMAL", "Baseline risk floor.", semantic.RiskLevel, 0.1))
	reg.MustRegister(constSpec("RISK_ELEVATED", "Elevated risk plateau.", semantic.RiskLevel, 0.6))
	reg.MustRegister(constSpec("RISK_SEVERE", "Severe risk plateau.", semantic.RiskLevel, 0.9))
	reg.MustRegister(constSpec("OPPORTUNITY_NONE", "No opportunity present.", semantic.OpportunityRating, 0))
	reg.MustRegister(constSpec("OPPORTUNITY_MODEST", "Modest opportunity plateau.", semantic.OpportunityRating, 0.4))
	reg.MustRegister(constSpec("OPPORTUNITY_RICH", "Rich opportunity plateau.", semantic.OpportunityRating, 0.85))
}

func numVarSpec(name, desc, path string, rt semantic.Type, def float64) Spec {
	return Spec{
		Name: name, Description: desc,
		Kind: KindVariable, ReturnType: rt,
		DefaultParams: Params{"path": path, "default": def},
		ParamNames:    []string{"path", "default", "source_range", "target_range"},
	}
}

func catVarSpec(name, desc, path string, rt semantic.Type, mapping map[string]float64, def float64) Spec {
	return Spec{
		Name: name, Description: desc,
		Kind: KindVariable, ReturnType: rt,
		DefaultParams: Params{"path": path, "default": def, "mapping": mapping},
		ParamNames:    []string{"path", "default", "mapping"},
	}
}

var trendMapping = map[string]float64{
	"uptrend":   1,
	"downtrend": -1,
	"undefined": 0,
}

var strengthMapping = map[string]float64{
	"weak":      0.25,
	"moderate":  0.5,
	"strong":    1,
	"undefined": 0,
}

var impactMapping = map[string]float64{
	"low":      0.2,
	"moderate": 0.5,
	"high":     0.9,
	"unknown":  0.3,
}

func registerVariables(reg *Registry) {
	reg.MustRegister(numVarSpec("RSI_DAILY",
		"RSI(14) on daily bars, raw 0..100.",
		"technical.daily.key_indicators.rsi_14", semantic.Momentum, 50))
	reg.MustRegister(numVarSpec("MACD_HIST_DAILY",
		"MACD histogram on daily bars.",
		"technical.daily.key_indicators.macd_histogram", semantic.Momentum, 0))
	reg.MustRegister(numVarSpec("VOLUME_RATIO_DAILY",
		"Last volume over its 20 day average.",
		"technical.daily.key_indicators.volume_ratio", semantic.Volume, 1))
	reg.MustRegister(numVarSpec("SUPPORT_DISTANCE_PCT",
		"Percent distance from close down to the nearest support.",
		"technical.daily.key_indicators.support_distance_pct", semantic.Percentage, 5))
	reg.MustRegister(numVarSpec("RESISTANCE_DISTANCE_PCT",
		"Percent distance from close up to the nearest resistance.",
		"technical.daily.key_indicators.resistance_distance_pct", semantic.Percentage, 5))
	topPattern := numVarSpec("TOP_PATTERN_SCORE",
		"Score of the highest ranked detected pattern, normalized into 0..1.",
		"technical.daily.patterns.0.score", semantic.Numerical, 0)
	topPattern.DefaultParams["source_range"] = Range{Lo: 0, Hi: 100}
	topPattern.DefaultParams["target_range"] = Range{Lo: 0, Hi: 1}
	reg.MustRegister(topPattern)

	atr := numVarSpec("ATR_PCT_DAILY",
		"ATR(14) as percent of close, normalized into 0..1.",
		"technical.daily.key_indicators.atr_pct", semantic.Volatility, 0.25)
	atr.DefaultParams["source_range"] = Range{Lo: 0, Hi: 8}
	atr.DefaultParams["target_range"] = Range{Lo: 0, Hi: 1}
	reg.MustRegister(atr)

	reg.MustRegister(catVarSpec("TREND_SHORT_DAILY",
		"Short horizon trend direction as -1, 0 or 1.",
		"technical.daily.trend.short.direction", semantic.Trend, trendMapping, 0))
	reg.MustRegister(catVarSpec("TREND_MID_DAILY",
		"Mid horizon trend direction as -1, 0 or 1.",
		"technical.daily.trend.mid.direction", semantic.Trend, trendMapping, 0))
	reg.MustRegister(catVarSpec("TREND_LONG_DAILY",
		"Long horizon trend direction as -1, 0 or 1.",
		"technical.daily.trend.long.direction", semantic.Trend, trendMapping, 0))
	reg.MustRegister(catVarSpec("TREND_STRENGTH_MID",
		"Mid horizon trend strength graded into 0..1.",
		"technical.daily.trend.mid.strength", semantic.Trend, strengthMapping, 0))

	reg.MustRegister(numVarSpec("NEWS_SENTIMENT",
		"Overall news sentiment, -1..1.",
		"news.summary.overall_score", semantic.Sentiment, 0))
	reg.MustRegister(numVarSpec("NEWS_ARTICLE_COUNT",
		"Number of analyzed articles.",
		"news.summary.article_count", semantic.Numerical, 0))
	reg.MustRegister(catVarSpec("NEWS_TOP_IMPACT",
		"Impact grade of the most recent article, 0..1.",
		"news.articles.0.impact.level", semantic.RiskLevel, impactMapping, 0.3))

	reg.MustRegister(numVarSpec("PROB_UP_5D",
		"Triple barrier probability of the up class.",
		"forecasting.0.prediction.2", semantic.ForecastProb, 1.0/3))
	reg.MustRegister(numVarSpec("PROB_DOWN_5D",
		"Triple barrier probability of the down class.",
		"forecasting.0.prediction.0", semantic.ForecastProb, 1.0/3))
	reg.MustRegister(numVarSpec("FORECAST_MEAN_5D_PCT",
		"Expected 5 day return in percent.",
		"forecasting.1.prediction.0", semantic.Percentage, 0))
	reg.MustRegister(numVarSpec("FORECAST_STD_5D_PCT",
		"Forecast 5 day return dispersion in percent.",
		"forecasting.1.prediction.1", semantic.Volatility, 2))
	reg.MustRegister(numVarSpec("FORECAST_MEAN_20D_PCT",
		"Expected 20 day return in percent.",
		"forecasting.2.prediction.0", semantic.Percentage, 0))
}
