package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stockrun/stockrun/internal/domain/semantic"
)

// Params carries the keyword arguments a node is constructed with. Values
// come either from a spec's defaults or from ad-hoc overrides.
type Params map[string]interface{}

// Float reads a numeric parameter, accepting ints for convenience.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return def
	}
}

// Str reads a string parameter.
func (p Params) Str(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Range reads an interval parameter given as a Range or a two-element
// float slice.
func (p Params) Range(key string) (Range, bool) {
	v, ok := p[key]
	if !ok {
		return Range{}, false
	}
	switch x := v.(type) {
	case Range:
		return x, true
	case *Range:
		if x == nil {
			return Range{}, false
		}
		return *x, true
	case [2]float64:
		return Range{Lo: x[0], Hi: x[1]}, true
	case []float64:
		if len(x) != 2 {
			return Range{}, false
		}
		return Range{Lo: x[0], Hi: x[1]}, true
	default:
		return Range{}, false
	}
}

// StrMap reads a categorical string to float mapping.
func (p Params) StrMap(key string) map[string]float64 {
	if v, ok := p[key].(map[string]float64); ok {
		return v
	}
	return nil
}

func (p Params) merge(over Params) Params {
	out := make(Params, len(p)+len(over))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func (p Params) restrict(names []string) Params {
	if names == nil {
		return p
	}
	out := make(Params, len(names))
	for _, n := range names {
		if v, ok := p[n]; ok {
			out[n] = v
		}
	}
	return out
}

// Spec is the registered description of a node type. Parsing reconstructs
// nodes from their name alone, so the spec carries everything a node needs
// beyond its children.
type Spec struct {
	Name          string          `json:"node_name"`
	Description   string          `json:"description"`
	Kind          NodeKind        `json:"node_type"`
	ReturnType    semantic.Type   `json:"return_type"`
	ArgsType      []semantic.Type `json:"args_type,omitempty"`
	Variadic      bool            `json:"variadic,omitempty"`
	Conditional   bool            `json:"conditional,omitempty"`
	DefaultParams Params          `json:"-"`
	ParamNames    []string        `json:"-"`
	Func          OpFunc          `json:"-"`
}

// Registry maps upper-cased node names to their specs. One registry is
// shared process-wide; registration happens during startup.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds a spec. Names are upper-cased; a second registration under
// the same name fails.
func (r *Registry) Register(spec Spec) error {
	spec.Name = strings.ToUpper(strings.TrimSpace(spec.Name))
	if spec.Name == "" {
		return fmt.Errorf("node spec has no name")
	}
	if !semantic.Valid(spec.ReturnType) {
		return fmt.Errorf("node %s: invalid return type %q", spec.Name, spec.ReturnType)
	}
	for _, at := range spec.ArgsType {
		if !semantic.Valid(at) {
			return fmt.Errorf("node %s: invalid argument type %q", spec.Name, at)
		}
	}
	switch spec.Kind {
	case KindConstant, KindVariable:
		if len(spec.ArgsType) > 0 {
			return fmt.Errorf("node %s: leaf nodes take no arguments", spec.Name)
		}
	case KindOperator:
		if len(spec.ArgsType) == 0 {
			return fmt.Errorf("node %s: operator declares no argument types", spec.Name)
		}
		if spec.Conditional && len(spec.ArgsType) != 3 {
			return fmt.Errorf("node %s: conditional operator needs exactly 3 arguments", spec.Name)
		}
		if !spec.Conditional && spec.Func == nil {
			return fmt.Errorf("node %s: functional operator has no function", spec.Name)
		}
	default:
		return fmt.Errorf("node %s: unknown kind %q", spec.Name, spec.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("node %s already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// MustRegister is Register for startup-time catalogs.
func (r *Registry) MustRegister(spec Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Get looks a spec up by name, case-insensitively.
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[strings.ToUpper(name)]
	return spec, ok
}

// ListFilter narrows List output. Zero values match everything.
type ListFilter struct {
	Kind       NodeKind
	ReturnType semantic.Type
}

// List returns registered specs sorted by name.
func (r *Registry) List(f ListFilter) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		if f.Kind != "" && spec.Kind != f.Kind {
			continue
		}
		if f.ReturnType != "" && spec.ReturnType != f.ReturnType {
			continue
		}
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// New constructs a node: defaults merged with ad-hoc arguments, restricted
// to the spec's accepted parameter names, then built per kind.
func (r *Registry) New(name string, adhoc Params, children ...Node) (Node, error) {
	spec, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	p := spec.DefaultParams.merge(adhoc).restrict(spec.ParamNames)

	switch spec.Kind {
	case KindConstant:
		if len(children) > 0 {
			return nil, fmt.Errorf("node %s: constants take no children", spec.Name)
		}
		return buildConstant(spec, p, nil)
	case KindVariable:
		if len(children) > 0 {
			return nil, fmt.Errorf("node %s: variables take no children", spec.Name)
		}
		return buildVariable(spec, p, nil)
	default:
		return buildOperator(spec, p, children)
	}
}
