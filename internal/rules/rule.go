package rules

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
)

// Status is a rule's lifecycle state.
type Status string

const (
	StatusReady      Status = "READY"
	StatusEvolving   Status = "EVOLVING"
	StatusDeprecated Status = "DEPRECATED"
)

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusReady, StatusEvolving, StatusDeprecated:
		return st, nil
	default:
		return "", fmt.Errorf("unknown rule status %q", s)
	}
}

// Operator is implemented by nodes that take children and declare their
// argument types.
type Operator interface {
	Node
	ArgTypes() []semantic.Type
	VariadicArgs() bool
}

// Rule is a named, status-bearing expression tree contributing to one
// advisory purpose.
type Rule struct {
	ID          string
	Name        string
	Description string
	Status      Status
	Purpose     semantic.Purpose
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Root        Node
}

// Execute evaluates the tree against the report. Deprecated rules score a
// neutral 0 without touching the tree.
func (r *Rule) Execute(rep *report.AnalysisReport) (float64, error) {
	if r.Status == StatusDeprecated {
		return 0, nil
	}
	if r.Root == nil {
		return 0, fmt.Errorf("rule %s has no root", r.ID)
	}
	return r.Root.Evaluate(rep)
}

// Hash is the SHA-1 of the canonical tree serialization. Structurally equal
// trees hash equal regardless of rule metadata, which makes the hash usable
// for deterministic naming and duplicate detection.
func (r *Rule) Hash() (string, error) {
	data, err := MarshalTree(r.Root)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Validate checks the tree for semantic well-typedness: every operator's
// i-th child must carry a return type compatible with the declared i-th
// argument type, and the root must be compatible with the rule's purpose.
func (r *Rule) Validate() error {
	if r.Root == nil {
		return fmt.Errorf("rule %s has no root", r.ID)
	}
	if want := r.Purpose.ResultType(); !semantic.Compatible(r.Root.ReturnType(), want) {
		return fmt.Errorf("rule %s: root returns %s, purpose %s expects %s",
			r.ID, r.Root.ReturnType(), r.Purpose, want)
	}
	return validateNode(r.Root)
}

func validateNode(n Node) error {
	op, ok := n.(Operator)
	if !ok {
		return nil
	}
	args := op.ArgTypes()
	for i, child := range n.Children() {
		want := argTypeAt(args, op.VariadicArgs(), i)
		if got := child.ReturnType(); !semantic.Compatible(got, want) {
			return fmt.Errorf("node %s: child %d returns %s, argument expects %s",
				n.Name(), i, got, want)
		}
		if err := validateNode(child); err != nil {
			return err
		}
	}
	return nil
}

// Summary is the trimmed rule view list endpoints return.
type Summary struct {
	RuleID      string           `json:"rule_id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Purpose     semantic.Purpose `json:"purpose"`
	Status      Status           `json:"rule_status"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Summarize builds the list view of r.
func (r *Rule) Summarize() Summary {
	return Summary{
		RuleID:      r.ID,
		Name:        r.Name,
		Description: r.Description,
		Purpose:     r.Purpose,
		Status:      r.Status,
		UpdatedAt:   r.UpdatedAt,
	}
}
