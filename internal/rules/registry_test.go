package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/domain/semantic"
)

func TestRegisterDuplicateFails(t *testing.T) {
	reg := NewRegistry()
	spec := constSpec("ANSWER", "", semantic.Numerical, 42)

	require.NoError(t, reg.Register(spec))
	err := reg.Register(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterUppercasesName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(constSpec("answer", "", semantic.Numerical, 42)))

	_, ok := reg.Get("ANSWER")
	assert.True(t, ok)
	_, ok = reg.Get("answer")
	assert.True(t, ok, "lookup is case-insensitive")

	err := reg.Register(constSpec("Answer", "", semantic.Numerical, 1))
	assert.Error(t, err, "same name in different case collides")
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(Spec{Name: "BAD_TYPE", Kind: KindConstant, ReturnType: "MOOD"})
	assert.Error(t, err)

	err = reg.Register(Spec{Name: "NO_ARGS_OP", Kind: KindOperator, ReturnType: semantic.Numerical})
	assert.Error(t, err)

	err = reg.Register(Spec{
		Name: "NO_FUNC_OP", Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: []semantic.Type{semantic.Any},
	})
	assert.Error(t, err)

	err = reg.Register(Spec{
		Name: "BAD_COND", Kind: KindOperator, ReturnType: semantic.Numerical,
		ArgsType: []semantic.Type{semantic.Boolean, semantic.Any}, Conditional: true,
	})
	assert.Error(t, err, "conditionals need exactly three arguments")
}

func TestNewUnknownNode(t *testing.T) {
	reg := BuiltinRegistry()

	_, err := reg.New("NO_SUCH_NODE", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")
}

func TestNewMergesAndRestrictsParams(t *testing.T) {
	reg := BuiltinRegistry()

	// Override the default value; the unrelated key must be dropped rather
	// than break construction.
	n, err := reg.New("ZERO", Params{"value": 7.5, "unrelated": "x"})
	require.NoError(t, err)

	v, err := n.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, 7.5, v)
}

func TestNewArityChecks(t *testing.T) {
	reg := BuiltinRegistry()
	one := mustNode(t, reg, "ONE")

	_, err := reg.New("GREATER_THAN", nil, one)
	assert.Error(t, err, "fixed arity operator wants two children")

	_, err = reg.New("MEAN", nil)
	assert.Error(t, err, "variadic operator wants at least one child")

	_, err = reg.New("ONE", nil, one)
	assert.Error(t, err, "constants take no children")
}

func TestNewRejectsIncompatibleChild(t *testing.T) {
	reg := BuiltinRegistry()

	// AND demands BOOLEAN children; a momentum variable is not one, so the
	// subtree must not assemble in the first place.
	_, err := reg.New("AND", nil, mustNode(t, reg, "RSI_DAILY"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "child 0")

	ok, err := reg.New("AND", nil,
		mustNode(t, reg, "GREATER_THAN", mustNode(t, reg, "RSI_DAILY"), mustNode(t, reg, "RSI_OVERBOUGHT")))
	require.NoError(t, err)
	assert.Equal(t, semantic.Boolean, ok.ReturnType())
}

func TestListFilters(t *testing.T) {
	reg := BuiltinRegistry()

	everything := reg.List(ListFilter{})
	assert.NotEmpty(t, everything)
	for i := 1; i < len(everything); i++ {
		assert.Less(t, everything[i-1].Name, everything[i].Name, "sorted by name")
	}

	constants := reg.List(ListFilter{Kind: KindConstant})
	require.NotEmpty(t, constants)
	for _, s := range constants {
		assert.Equal(t, KindConstant, s.Kind)
	}

	risk := reg.List(ListFilter{ReturnType: semantic.RiskLevel})
	require.NotEmpty(t, risk)
	for _, s := range risk {
		assert.Equal(t, semantic.RiskLevel, s.ReturnType)
	}
}

func TestBuiltinRegistryHasCoreNodes(t *testing.T) {
	reg := BuiltinRegistry()

	for _, name := range []string{
		"ADD", "MEAN", "GREATER_THAN", "IF_SIGNAL", "SIGNAL_BLEND",
		"RISK_PEAK", "OPPORTUNITY_FLOOR", "RSI_DAILY", "TREND_MID_DAILY",
		"NEWS_SENTIMENT", "PROB_UP_5D", "ZERO",
	} {
		_, ok := reg.Get(name)
		assert.True(t, ok, "missing builtin %s", name)
	}
}
