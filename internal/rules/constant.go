package rules

import (
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
)

// constantNode returns a fixed value, optionally normalized from a source
// range into a target range.
type constantNode struct {
	name       string
	returnType semantic.Type
	value      float64
	normalize  bool
	src, dst   Range
}

func (n *constantNode) Name() string              { return n.name }
func (n *constantNode) Kind() NodeKind            { return KindConstant }
func (n *constantNode) ReturnType() semantic.Type { return n.returnType }
func (n *constantNode) Children() []Node          { return nil }

func (n *constantNode) Evaluate(_ *report.AnalysisReport) (float64, error) {
	if n.normalize {
		return Normalize(n.value, n.src, n.dst), nil
	}
	return n.value, nil
}

func buildConstant(spec Spec, p Params, _ []Node) (Node, error) {
	n := &constantNode{
		name:       spec.Name,
		returnType: spec.ReturnType,
		value:      p.Float("value", 0),
	}
	if src, ok := p.Range("source_range"); ok {
		dst, _ := p.Range("target_range")
		n.normalize = true
		n.src = src
		n.dst = dst
	}
	return n, nil
}
