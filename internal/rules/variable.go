package rules

import (
	"fmt"

	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/errs"
)

// variableNode reads a value from the report via a dotted path. Numerical
// variables normalize the raw number between declared ranges; categorical
// variables decode a string through a fixed mapping. A missing value at any
// step yields the configured default, never an error.
type variableNode struct {
	name       string
	returnType semantic.Type
	path       Path
	defaultVal float64

	normalize bool
	src, dst  Range

	mapping map[string]float64
}

func (n *variableNode) Name() string              { return n.name }
func (n *variableNode) Kind() NodeKind            { return KindVariable }
func (n *variableNode) ReturnType() semantic.Type { return n.returnType }
func (n *variableNode) Children() []Node          { return nil }

func (n *variableNode) Evaluate(rep *report.AnalysisReport) (float64, error) {
	if n.mapping != nil {
		s, ok := n.path.Str(rep)
		if !ok {
			return n.defaultVal, nil
		}
		v, ok := n.mapping[s]
		if !ok {
			return n.defaultVal, nil
		}
		return v, nil
	}

	raw, ok := n.path.Float(rep)
	if !ok {
		return n.defaultVal, nil
	}
	if n.normalize {
		return Normalize(raw, n.src, n.dst), nil
	}
	return raw, nil
}

func buildVariable(spec Spec, p Params, _ []Node) (Node, error) {
	rawPath := p.Str("path", "")
	path, err := ParsePath(rawPath)
	if err != nil {
		// A malformed path is a developer error in the node catalog, tagged
		// with its own kind so it never masquerades as a data problem.
		return nil, errs.BadVarPath(rawPath, fmt.Errorf("node %s: %w", spec.Name, err))
	}

	n := &variableNode{
		name:       spec.Name,
		returnType: spec.ReturnType,
		path:       path,
		defaultVal: p.Float("default", 0),
	}
	if m := p.StrMap("mapping"); len(m) > 0 {
		n.mapping = m
		return n, nil
	}
	if src, ok := p.Range("source_range"); ok {
		dst, _ := p.Range("target_range")
		n.normalize = true
		n.src = src
		n.dst = dst
	}
	return n, nil
}
