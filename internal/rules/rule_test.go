package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/domain/semantic"
)

func seedByID(t *testing.T, id string) *Rule {
	t.Helper()
	seeds, err := SeedRules(BuiltinRegistry())
	require.NoError(t, err)
	for _, r := range seeds {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("no seed rule %s", id)
	return nil
}

func TestSeedRulesBuildAndValidate(t *testing.T) {
	seeds, err := SeedRules(BuiltinRegistry())
	require.NoError(t, err)
	require.Len(t, seeds, 9)

	perPurpose := map[semantic.Purpose]int{}
	for _, r := range seeds {
		require.NoError(t, r.Validate(), "seed %s", r.ID)
		perPurpose[r.Purpose]++
	}
	assert.Equal(t, 4, perPurpose[semantic.PurposeDecisionSignal])
	assert.Equal(t, 3, perPurpose[semantic.PurposeRiskLevel])
	assert.Equal(t, 2, perPurpose[semantic.PurposeOpportunityRating])
}

func TestRuleExecution(t *testing.T) {
	rep := testReport()

	tests := []struct {
		id   string
		want float64
	}{
		{"seed-momentum-alignment", 1.0 / 3},
		{"seed-rsi-reversal", 1},
		{"seed-forecast-conviction", 1},
		{"seed-news-tone", 0.42},
		{"seed-volatility-risk", 0.5},
		{"seed-news-event-risk", 0.9},
		{"seed-downside-risk", 0.1},
		{"seed-pattern-opportunity", 0.68},
		{"seed-upside-opportunity", 0.85},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := seedByID(t, tt.id).Execute(rep)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDeprecatedRuleScoresZero(t *testing.T) {
	r := seedByID(t, "seed-rsi-reversal")
	r.Status = StatusDeprecated

	got, err := r.Execute(testReport())
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestRuleExecutesOnSparseReport(t *testing.T) {
	reg := BuiltinRegistry()
	seeds, err := SeedRules(reg)
	require.NoError(t, err)

	// Defaults carry every variable when the report has no sections at all.
	rep := testReport()
	rep.Technical = nil
	rep.Forecasting = nil
	rep.News = nil

	for _, r := range seeds {
		_, err := r.Execute(rep)
		assert.NoError(t, err, "rule %s", r.ID)
	}
}

func TestValidateRejectsWrongRootPurpose(t *testing.T) {
	reg := BuiltinRegistry()
	r := &Rule{
		ID:      "r1",
		Status:  StatusReady,
		Purpose: semantic.PurposeRiskLevel,
		Root:    mustNode(t, reg, "SIGNAL_CLAMP", mustNode(t, reg, "NEWS_SENTIMENT")),
	}

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purpose")
}

func TestValidateRejectsIncompatibleChild(t *testing.T) {
	reg := BuiltinRegistry()

	// AND demands BOOLEAN children; a momentum variable is not one.
	bad := &funcOperator{
		name:       "AND",
		returnType: semantic.Boolean,
		argsType:   []semantic.Type{semantic.Boolean},
		variadic:   true,
		children:   []Node{mustNode(t, reg, "RSI_DAILY")},
		fn:         func([]float64) (float64, error) { return 0, nil },
	}
	r := &Rule{
		ID:      "r2",
		Status:  StatusReady,
		Purpose: semantic.PurposeDecisionSignal,
		Root: &conditionalOperator{
			name:       "IF_SIGNAL",
			returnType: semantic.DecisionSignal,
			argsType:   []semantic.Type{semantic.Boolean, semantic.Any, semantic.Any},
			children:   []Node{bad, mustNode(t, reg, "SIGNAL_NEUTRAL"), mustNode(t, reg, "SIGNAL_NEUTRAL")},
		},
	}

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "child 0")
}

func TestRuleHashDeterministic(t *testing.T) {
	a := seedByID(t, "seed-rsi-reversal")
	b := seedByID(t, "seed-rsi-reversal")

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 40, "sha1 hex")

	// Metadata must not influence the hash.
	b.Name = "renamed"
	b.Status = StatusDeprecated
	hb2, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb2)
}

func TestRuleHashDiffersByStructure(t *testing.T) {
	ha, err := seedByID(t, "seed-rsi-reversal").Hash()
	require.NoError(t, err)
	hb, err := seedByID(t, "seed-news-tone").Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}
