// Package rules implements the decision rule runtime: typed expression
// trees evaluated against analysis reports, a process-wide node registry,
// and the canonical serialization used for storage and hashing.
package rules

import (
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
)

// NodeKind partitions registered nodes by their evaluation shape.
type NodeKind string

const (
	KindConstant NodeKind = "CONSTANT"
	KindVariable NodeKind = "VARIABLE"
	KindOperator NodeKind = "OPERATOR"
)

// Node is one vertex of a rule expression tree. Evaluation produces a float;
// the semantic type declares what that float means so trees can be checked
// for well-typedness before they run.
type Node interface {
	// Name is the registry identifier, always upper-case.
	Name() string
	// Kind reports the node shape.
	Kind() NodeKind
	// ReturnType is the declared semantic type of the evaluation result.
	ReturnType() semantic.Type
	// Children returns the ordered child nodes, nil for leaves.
	Children() []Node
	// Evaluate computes the node's value against the report.
	Evaluate(rep *report.AnalysisReport) (float64, error)
}

// Range is an inclusive numeric interval used for normalization.
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Normalize maps v from src to dst by linear interpolation, clamping v at
// the source endpoints first. A degenerate source collapses to dst.Lo.
func Normalize(v float64, src, dst Range) float64 {
	if src.Lo == src.Hi {
		return dst.Lo
	}
	if v <= src.Lo {
		return dst.Lo
	}
	if v >= src.Hi {
		return dst.Hi
	}
	t := (v - src.Lo) / (src.Hi - src.Lo)
	return dst.Lo + t*(dst.Hi-dst.Lo)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
