package rules

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// Path is a parsed dotted path into the analysis report graph. Segments
// address struct fields by their JSON tag, map keys by string, and list
// elements by integer index; negative indices count from the end.
type Path struct {
	raw  string
	segs []segment
}

type segment struct {
	raw   string
	index int
	isInt bool
}

// ParsePath validates the path syntax. Shape mismatches against actual data
// are not syntax errors; they surface later as missing values.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("empty variable path")
	}
	parts := strings.Split(raw, ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return Path{}, fmt.Errorf("variable path %q: empty segment", raw)
		}
		if idx, err := strconv.Atoi(p); err == nil {
			segs = append(segs, segment{raw: p, index: idx, isInt: true})
			continue
		}
		if !validSegment(p) {
			return Path{}, fmt.Errorf("variable path %q: bad segment %q", raw, p)
		}
		segs = append(segs, segment{raw: p})
	}
	return Path{raw: raw, segs: segs}, nil
}

// MustPath is ParsePath for statically known paths, such as the builtin
// node catalog.
func MustPath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func validSegment(s string) bool {
	for _, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func (p Path) String() string { return p.raw }

// Empty reports whether the path was never parsed.
func (p Path) Empty() bool { return len(p.segs) == 0 }

// Float resolves the path and coerces the terminal to a float. Booleans map
// to 1 and 0. The second return is false when any step is missing or the
// terminal is not numeric.
func (p Path) Float(root interface{}) (float64, bool) {
	v, ok := p.resolve(root)
	if !ok {
		return 0, false
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Bool:
		if v.Bool() {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Str resolves the path and coerces the terminal to a string.
func (p Path) Str(root interface{}) (string, bool) {
	v, ok := p.resolve(root)
	if !ok {
		return "", false
	}
	if v.Kind() != reflect.String {
		return "", false
	}
	return v.String(), true
}

func (p Path) resolve(root interface{}) (reflect.Value, bool) {
	v := reflect.ValueOf(root)
	for _, seg := range p.segs {
		var ok bool
		v, ok = step(v, seg)
		if !ok {
			return reflect.Value{}, false
		}
	}
	v = indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	return v, true
}

func step(v reflect.Value, seg segment) (reflect.Value, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Struct:
		idx, ok := fieldByTag(v.Type(), seg.raw)
		if !ok {
			return reflect.Value{}, false
		}
		return v.Field(idx), true
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		mv := v.MapIndex(reflect.ValueOf(seg.raw).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return reflect.Value{}, false
		}
		return mv, true
	case reflect.Slice, reflect.Array:
		if !seg.isInt {
			return reflect.Value{}, false
		}
		i := seg.index
		if i < 0 {
			i += v.Len()
		}
		if i < 0 || i >= v.Len() {
			return reflect.Value{}, false
		}
		return v.Index(i), true
	default:
		return reflect.Value{}, false
	}
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var (
	fieldCacheMu sync.RWMutex
	fieldCache   = map[reflect.Type]map[string]int{}
)

// fieldByTag finds the exported struct field whose JSON tag (or, failing
// that, name) matches key. Lookups are cached per type.
func fieldByTag(t reflect.Type, key string) (int, bool) {
	fieldCacheMu.RLock()
	m, ok := fieldCache[t]
	fieldCacheMu.RUnlock()
	if !ok {
		m = make(map[string]int, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			tag := strings.Split(f.Tag.Get("json"), ",")[0]
			if tag != "" && tag != "-" {
				m[tag] = i
			} else if tag != "-" {
				m[f.Name] = i
			}
		}
		fieldCacheMu.Lock()
		fieldCache[t] = m
		fieldCacheMu.Unlock()
	}
	idx, ok := m[key]
	return idx, ok
}
