// Package semantic defines the closed type system rule trees are checked
// against. Every node declares a return type; operators additionally declare
// argument types. A child type C fits a declared argument type A iff C and A
// are equal or either is among the other's concretes.
package semantic

import "fmt"

// Type is a semantic type tag carried by rule nodes.
type Type string

const (
	Numerical         Type = "NUMERICAL"
	Boolean           Type = "BOOLEAN"
	Price             Type = "PRICE"
	Percentage        Type = "PERCENTAGE"
	FinancialRatio    Type = "FINANCIAL_RATIO"
	Momentum          Type = "MOMENTUM"
	Trend             Type = "TREND"
	Volatility        Type = "VOLATILITY"
	Volume            Type = "VOLUME"
	Sentiment         Type = "SENTIMENT"
	ForecastProb      Type = "FORECAST_PROB"
	DecisionSignal    Type = "DECISION_SIGNAL"
	RiskLevel         Type = "RISK_LEVEL"
	OpportunityRating Type = "OPPORTUNITY_RATING"

	// Any and AnyNumeric are abstract: they never appear as effective node
	// types, only as declared argument types.
	Any        Type = "ANY"
	AnyNumeric Type = "ANY_NUMERIC"
)

var concrete = []Type{
	Numerical, Boolean, Price, Percentage, FinancialRatio, Momentum,
	Trend, Volatility, Volume, Sentiment, ForecastProb,
	DecisionSignal, RiskLevel, OpportunityRating,
}

var numeric = []Type{
	Numerical, Percentage, FinancialRatio, Momentum, Trend,
	Volatility, Volume, Sentiment, ForecastProb, Price,
}

var all = func() map[Type]bool {
	m := make(map[Type]bool, len(concrete)+2)
	for _, t := range concrete {
		m[t] = true
	}
	m[Any] = true
	m[AnyNumeric] = true
	return m
}()

// Valid reports whether t belongs to the closed type set.
func Valid(t Type) bool {
	return all[t]
}

// Abstract reports whether t is a placeholder that stands for a family of
// concrete types.
func (t Type) Abstract() bool {
	return t == Any || t == AnyNumeric
}

// Concretes returns the concrete types an argument declared as t accepts.
// For a concrete t the result is t itself.
func Concretes(t Type) []Type {
	switch t {
	case Any:
		out := make([]Type, len(concrete))
		copy(out, concrete)
		return out
	case AnyNumeric:
		out := make([]Type, len(numeric))
		copy(out, numeric)
		return out
	default:
		return []Type{t}
	}
}

// Compatible reports whether a child declared as got satisfies an argument
// declared as want. Substitution is covariant in both directions: got may be
// one of want's concretes, or want one of got's, so an ANY_NUMERIC child
// plugs into a PRICE slot and vice versa.
func Compatible(got, want Type) bool {
	if got == want {
		return true
	}
	for _, c := range Concretes(want) {
		if c == got {
			return true
		}
	}
	for _, c := range Concretes(got) {
		if c == want {
			return true
		}
	}
	return false
}

// Parse validates a raw string against the closed set.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !Valid(t) {
		return "", fmt.Errorf("unknown semantic type %q", s)
	}
	return t, nil
}

// Purpose is the advisory dimension a rule contributes to. Each purpose has
// its own aggregation operator and output range.
type Purpose string

const (
	PurposeDecisionSignal    Purpose = "DECISION_SIGNAL"
	PurposeRiskLevel         Purpose = "RISK_LEVEL"
	PurposeOpportunityRating Purpose = "OPPORTUNITY_RATING"
)

// Purposes lists the advisory dimensions in their canonical order.
func Purposes() []Purpose {
	return []Purpose{PurposeDecisionSignal, PurposeRiskLevel, PurposeOpportunityRating}
}

// ParsePurpose validates a raw purpose string.
func ParsePurpose(s string) (Purpose, error) {
	switch p := Purpose(s); p {
	case PurposeDecisionSignal, PurposeRiskLevel, PurposeOpportunityRating:
		return p, nil
	default:
		return "", fmt.Errorf("unknown rule purpose %q", s)
	}
}

// ResultType maps a purpose to the semantic type its rules must return.
func (p Purpose) ResultType() Type {
	switch p {
	case PurposeRiskLevel:
		return RiskLevel
	case PurposeOpportunityRating:
		return OpportunityRating
	default:
		return DecisionSignal
	}
}

// Range returns the inclusive output bounds for final scores of this purpose.
func (p Purpose) Range() (lo, hi float64) {
	if p == PurposeDecisionSignal {
		return -1, 1
	}
	return 0, 1
}
