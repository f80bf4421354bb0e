package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stockrun/stockrun/internal/domain/semantic"
)

func TestAggregateDecisionMean(t *testing.T) {
	got := Aggregate(semantic.PurposeDecisionSignal, []float64{1, -0.5, 0.5})
	assert.InDelta(t, 1.0/3, got, 1e-12)
}

func TestAggregateRiskMax(t *testing.T) {
	got := Aggregate(semantic.PurposeRiskLevel, []float64{0.2, 0.9, 0.4})
	assert.Equal(t, 0.9, got)
}

func TestAggregateOpportunityMin(t *testing.T) {
	got := Aggregate(semantic.PurposeOpportunityRating, []float64{0.7, 0.3, 0.5})
	assert.Equal(t, 0.3, got)
}

func TestAggregateEmptyCoercesToZero(t *testing.T) {
	for _, p := range semantic.Purposes() {
		assert.Equal(t, 0.0, Aggregate(p, nil), "purpose %s", p)
	}
}

func TestSynthesizeDefaults(t *testing.T) {
	got := Synthesize(0.6, 0.3, 0.2, Weights{})
	assert.InDelta(t, 0.5, got, 1e-12)
}

func TestSynthesizeWeighted(t *testing.T) {
	got := Synthesize(0.6, 0.3, 0.2, NewWeights(0.5, 2, 1))
	assert.InDelta(t, -0.1, got, 1e-12)
}

func TestSynthesizeExplicitZeroWeight(t *testing.T) {
	// A zero risk weight silences risk entirely; the unset fields still
	// default to 1.
	got := Synthesize(0.6, 0.3, 0.2, Weights{Risk: Weight(0)})
	assert.InDelta(t, 0.8, got, 1e-12)
}

func TestSynthesizeClamps(t *testing.T) {
	assert.Equal(t, 1.0, Synthesize(1, 0, 1, Weights{}))
	assert.Equal(t, -1.0, Synthesize(-1, 1, 0, Weights{}))
}

func TestSynthesizeFromAggregates(t *testing.T) {
	decision := Aggregate(semantic.PurposeDecisionSignal, []float64{0.2, 0.4, 0.6})
	risk := Aggregate(semantic.PurposeRiskLevel, []float64{0.1, 0.3})
	opp := Aggregate(semantic.PurposeOpportunityRating, []float64{0.5, 0.2})

	assert.InDelta(t, 0.4, decision, 1e-12)
	assert.InDelta(t, 0.3, risk, 1e-12)
	assert.InDelta(t, 0.2, opp, 1e-12)
	assert.InDelta(t, 0.3, Synthesize(decision, risk, opp, Weights{}), 1e-12)
}

func TestWeightsValues(t *testing.T) {
	d, r, o := Weights{Risk: Weight(2)}.Values()
	assert.Equal(t, 1.0, d)
	assert.Equal(t, 2.0, r)
	assert.Equal(t, 1.0, o)

	d, r, o = Weights{Opportunity: Weight(0)}.Values()
	assert.Equal(t, 1.0, d)
	assert.Equal(t, 1.0, r)
	assert.Equal(t, 0.0, o, "explicit zero survives resolution")
}

func TestReportRecommendationLookup(t *testing.T) {
	r := &Report{Recommendations: []FinalRecommendation{
		{Purpose: semantic.PurposeRiskLevel, Label: "LOW"},
	}}

	assert.NotNil(t, r.Recommendation(semantic.PurposeRiskLevel))
	assert.Nil(t, r.Recommendation(semantic.PurposeDecisionSignal))
}
