package rules

import (
	"fmt"

	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
)

// OpFunc is the pure function a functional operator applies to its
// evaluated children.
type OpFunc func(args []float64) (float64, error)

// funcOperator evaluates every child, then applies fn.
type funcOperator struct {
	name       string
	returnType semantic.Type
	argsType   []semantic.Type
	variadic   bool
	children   []Node
	fn         OpFunc
}

func (n *funcOperator) Name() string              { return n.name }
func (n *funcOperator) Kind() NodeKind            { return KindOperator }
func (n *funcOperator) ReturnType() semantic.Type { return n.returnType }
func (n *funcOperator) Children() []Node          { return n.children }
func (n *funcOperator) ArgTypes() []semantic.Type { return n.argsType }
func (n *funcOperator) VariadicArgs() bool        { return n.variadic }

func (n *funcOperator) Evaluate(rep *report.AnalysisReport) (float64, error) {
	args := make([]float64, len(n.children))
	for i, c := range n.children {
		v, err := c.Evaluate(rep)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return n.fn(args)
}

// conditionalOperator is "if cond then a else b": the condition child always
// runs; only the taken branch is evaluated.
type conditionalOperator struct {
	name       string
	returnType semantic.Type
	argsType   []semantic.Type
	children   []Node
}

func (n *conditionalOperator) Name() string              { return n.name }
func (n *conditionalOperator) Kind() NodeKind            { return KindOperator }
func (n *conditionalOperator) ReturnType() semantic.Type { return n.returnType }
func (n *conditionalOperator) Children() []Node          { return n.children }
func (n *conditionalOperator) ArgTypes() []semantic.Type { return n.argsType }
func (n *conditionalOperator) VariadicArgs() bool        { return false }

func (n *conditionalOperator) Evaluate(rep *report.AnalysisReport) (float64, error) {
	cond, err := n.children[0].Evaluate(rep)
	if err != nil {
		return 0, err
	}
	if cond > 0 {
		return n.children[1].Evaluate(rep)
	}
	return n.children[2].Evaluate(rep)
}

func buildOperator(spec Spec, _ Params, children []Node) (Node, error) {
	if err := checkArity(spec, children); err != nil {
		return nil, err
	}
	for i, c := range children {
		want := argTypeAt(spec.ArgsType, spec.Variadic, i)
		if got := c.ReturnType(); !semantic.Compatible(got, want) {
			return nil, fmt.Errorf("node %s: child %d returns %s, argument expects %s",
				spec.Name, i, got, want)
		}
	}
	if spec.Conditional {
		return &conditionalOperator{
			name:       spec.Name,
			returnType: spec.ReturnType,
			argsType:   spec.ArgsType,
			children:   children,
		}, nil
	}
	if spec.Func == nil {
		return nil, fmt.Errorf("node %s: operator has no function", spec.Name)
	}
	return &funcOperator{
		name:       spec.Name,
		returnType: spec.ReturnType,
		argsType:   spec.ArgsType,
		variadic:   spec.Variadic,
		children:   children,
		fn:         spec.Func,
	}, nil
}

func checkArity(spec Spec, children []Node) error {
	want := len(spec.ArgsType)
	got := len(children)
	if spec.Variadic {
		if got < want {
			return fmt.Errorf("node %s: want at least %d children, got %d", spec.Name, want, got)
		}
		return nil
	}
	if got != want {
		return fmt.Errorf("node %s: want %d children, got %d", spec.Name, want, got)
	}
	return nil
}

// argTypeAt returns the declared type of the i-th argument, repeating the
// last declared type for variadic operators.
func argTypeAt(args []semantic.Type, variadic bool, i int) semantic.Type {
	if i < len(args) {
		return args[i]
	}
	if variadic && len(args) > 0 {
		return args[len(args)-1]
	}
	return semantic.Any
}
