package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stockrun/stockrun/internal/domain/semantic"
)

// TreeJSON is the canonical wire form of a node tree. Leaves carry only
// their registry name; operators add an ordered children list. Everything
// else about a node lives in its registered spec, so parsing needs the
// registry that built the tree.
type TreeJSON struct {
	NodeName string     `json:"node_name"`
	Children []TreeJSON `json:"children,omitempty"`
}

// ToTreeJSON converts a live tree into its wire form.
func ToTreeJSON(n Node) TreeJSON {
	out := TreeJSON{NodeName: n.Name()}
	for _, c := range n.Children() {
		out.Children = append(out.Children, ToTreeJSON(c))
	}
	return out
}

// MarshalTree serializes a tree canonically. Key order is fixed by the
// struct, child order by the tree, so equal trees produce equal bytes.
func MarshalTree(n Node) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("nil tree")
	}
	return json.Marshal(ToTreeJSON(n))
}

// UnmarshalTree parses the wire form and reconstructs the tree through the
// registry.
func UnmarshalTree(data []byte, reg *Registry) (Node, error) {
	var wire TreeJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse tree: %w", err)
	}
	return FromTreeJSON(wire, reg)
}

// FromTreeJSON rebuilds a node from its wire form.
func FromTreeJSON(wire TreeJSON, reg *Registry) (Node, error) {
	children := make([]Node, 0, len(wire.Children))
	for _, cw := range wire.Children {
		c, err := FromTreeJSON(cw, reg)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	n, err := reg.New(wire.NodeName, nil, children...)
	if err != nil {
		return nil, fmt.Errorf("rebuild node %s: %w", wire.NodeName, err)
	}
	return n, nil
}

// RuleJSON is the wire form of a full rule.
type RuleJSON struct {
	RuleID      string    `json:"rule_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Purpose     string    `json:"purpose"`
	RuleStatus  string    `json:"rule_status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Root        TreeJSON  `json:"root"`
}

// MarshalRule serializes a rule with its tree.
func MarshalRule(r *Rule) ([]byte, error) {
	if r.Root == nil {
		return nil, fmt.Errorf("rule %s has no root", r.ID)
	}
	return json.Marshal(RuleJSON{
		RuleID:      r.ID,
		Name:        r.Name,
		Description: r.Description,
		Purpose:     string(r.Purpose),
		RuleStatus:  string(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Root:        ToTreeJSON(r.Root),
	})
}

// UnmarshalRule parses a rule and validates its tree types.
func UnmarshalRule(data []byte, reg *Registry) (*Rule, error) {
	var wire RuleJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse rule: %w", err)
	}
	return FromRuleJSON(wire, reg)
}

// FromRuleJSON rebuilds a rule from its wire form.
func FromRuleJSON(wire RuleJSON, reg *Registry) (*Rule, error) {
	purpose, err := semantic.ParsePurpose(wire.Purpose)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", wire.RuleID, err)
	}
	status, err := ParseStatus(wire.RuleStatus)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", wire.RuleID, err)
	}
	root, err := FromTreeJSON(wire.Root, reg)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", wire.RuleID, err)
	}
	r := &Rule{
		ID:          wire.RuleID,
		Name:        wire.Name,
		Description: wire.Description,
		Status:      status,
		Purpose:     purpose,
		CreatedAt:   wire.CreatedAt,
		UpdatedAt:   wire.UpdatedAt,
		Root:        root,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
