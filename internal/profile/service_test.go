package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/advisor"
	"github.com/stockrun/stockrun/internal/rules"
)

func TestGetProfileFallsBackToDefault(t *testing.T) {
	svc := NewStaticService(
		[]Profile{{UserID: "u1", Appetite: AppetiteAggressive}},
		Profile{Appetite: AppetiteConservative},
	)

	p, err := svc.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, AppetiteAggressive, p.Appetite)

	p, err = svc.GetProfile(context.Background(), "stranger")
	require.NoError(t, err)
	assert.Equal(t, "stranger", p.UserID)
	assert.Equal(t, AppetiteConservative, p.Appetite)
}

func TestRuleSelectorByAppetite(t *testing.T) {
	svc := NewStaticService(nil, Profile{})
	ready := &rules.Rule{ID: "r1", Status: rules.StatusReady}
	evolving := &rules.Rule{ID: "r2", Status: rules.StatusEvolving}
	deprecated := &rules.Rule{ID: "r3", Status: rules.StatusDeprecated}

	balanced := svc.RuleSelector(Profile{Appetite: AppetiteBalanced})
	assert.True(t, balanced(ready))
	assert.False(t, balanced(evolving))
	assert.False(t, balanced(deprecated))

	aggressive := svc.RuleSelector(Profile{Appetite: AppetiteAggressive})
	assert.True(t, aggressive(ready))
	assert.True(t, aggressive(evolving))
	assert.False(t, aggressive(deprecated))
}

func TestMetaWeights(t *testing.T) {
	svc := NewStaticService(nil, Profile{})

	_, risk, opp := svc.MetaWeights(Profile{Appetite: AppetiteConservative}).Values()
	assert.Greater(t, risk, opp)

	_, risk, opp = svc.MetaWeights(Profile{Appetite: AppetiteAggressive}).Values()
	assert.Greater(t, opp, risk)

	// Explicit weights beat the appetite shape.
	dec, risk, _ := svc.MetaWeights(Profile{
		Appetite: AppetiteConservative,
		Weights:  advisor.NewWeights(2, 0.5, 0.5),
	}).Values()
	assert.Equal(t, 2.0, dec)
	assert.Equal(t, 0.5, risk)
}

func TestMetaWeightsKeepExplicitZero(t *testing.T) {
	svc := NewStaticService(nil, Profile{})

	_, risk, opp := svc.MetaWeights(Profile{
		Appetite: AppetiteConservative,
		Weights:  advisor.Weights{Risk: advisor.Weight(0)},
	}).Values()
	assert.Equal(t, 0.0, risk, "profile can silence a dimension")
	assert.Equal(t, 1.0, opp, "unset fields still default")
}
