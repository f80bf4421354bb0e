// Package advisor turns raw rule scores into final recommendations: a
// per-purpose aggregation law, a weighted meta-synthesis across purposes,
// and a label mapper from numbers to human-readable advice.
package advisor

import (
	"time"

	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/rules"
)

// TriggeredRule records one rule's contribution to a recommendation.
type TriggeredRule struct {
	RuleID   string  `json:"rule_id"`
	Name     string  `json:"name"`
	RawScore float64 `json:"raw_score"`
}

// FinalRecommendation is one purpose's aggregated outcome.
type FinalRecommendation struct {
	Purpose        semantic.Purpose `json:"purpose"`
	FinalScore     float64          `json:"final_score"`
	Label          string           `json:"label"`
	Recommendation string           `json:"recommendation"`
	TriggeredRules []TriggeredRule  `json:"triggered_rules"`
}

// Report is the advisory output for one (ticker, user) pair. The three
// recommendations are ordered decision, risk, opportunity.
type Report struct {
	Ticker          string                `json:"ticker"`
	UserID          string                `json:"user_id"`
	GeneratedAt     time.Time             `json:"generated_at"`
	Recommendations []FinalRecommendation `json:"recommendations"`
}

// Recommendation returns the entry for the given purpose, nil if absent.
func (r *Report) Recommendation(p semantic.Purpose) *FinalRecommendation {
	for i := range r.Recommendations {
		if r.Recommendations[i].Purpose == p {
			return &r.Recommendations[i]
		}
	}
	return nil
}

// Weights scale the meta-synthesis contributions. Nil fields mean "use the
// default of 1"; an explicit zero silences that dimension.
type Weights struct {
	Decision    *float64 `json:"decision,omitempty" yaml:"decision,omitempty"`
	Risk        *float64 `json:"risk,omitempty" yaml:"risk,omitempty"`
	Opportunity *float64 `json:"opportunity,omitempty" yaml:"opportunity,omitempty"`
}

// Weight boxes a literal weight value.
func Weight(v float64) *float64 { return &v }

// NewWeights builds fully specified weights.
func NewWeights(decision, risk, opportunity float64) Weights {
	return Weights{Decision: &decision, Risk: &risk, Opportunity: &opportunity}
}

func weightOr(v *float64) float64 {
	if v == nil {
		return 1
	}
	return *v
}

// Values returns the three weights with unset entries defaulted to 1.
func (w Weights) Values() (decision, risk, opportunity float64) {
	return weightOr(w.Decision), weightOr(w.Risk), weightOr(w.Opportunity)
}

// Aggregate reduces one purpose's raw scores to a single number. Decision
// signals average, risk takes the worst case, opportunity the most
// conservative. An empty multiset coerces to 0.
func Aggregate(p semantic.Purpose, scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	switch p {
	case semantic.PurposeRiskLevel:
		m := scores[0]
		for _, s := range scores[1:] {
			if s > m {
				m = s
			}
		}
		return m
	case semantic.PurposeOpportunityRating:
		m := scores[0]
		for _, s := range scores[1:] {
			if s < m {
				m = s
			}
		}
		return m
	default:
		var sum float64
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores))
	}
}

// Synthesize blends the three purpose aggregates into the final decision
// score. Risk pulls the decision down, opportunity pushes it up; the result
// is clamped into the decision range. Risk and opportunity pass through
// unchanged.
func Synthesize(decision, risk, opportunity float64, w Weights) float64 {
	wd, wr, wo := w.Values()
	return rules.Clamp(decision*wd-risk*wr+opportunity*wo, -1, 1)
}
