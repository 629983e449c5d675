package bridge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/polyglot/interchange"
)

// Any matches every language in a converter key.
const Any = "*"

// Converter turns a value of one language into the shape another expects.
// It receives a private copy and may modify it.
type Converter func(interchange.Value) (interchange.Value, error)

type key struct {
	from, to string
	kind     interchange.Kind
}

// Table maps (from, to, kind) to converters. Lookups try the exact key,
// then (from, *, kind), (*, to, kind) and (*, *, kind); without a match
// the value passes through the two languages' type systems. Safe for
// concurrent use.
type Table struct {
	mu         sync.RWMutex
	converters map[key]Converter
	systems    map[string]TypeSystem
}

// NewTable creates a table with the built-in type systems and no
// converters.
func NewTable() *Table {
	t := &Table{
		converters: make(map[key]Converter),
		systems:    make(map[string]TypeSystem),
	}
	for _, ts := range builtinTypeSystems() {
		t.RegisterTypeSystem(ts)
	}
	return t
}

func normalize(lang string) string {
	return strings.ToLower(lang)
}

// Register installs c for values of kind moving from one language to
// another. Either language may be Any.
func (t *Table) Register(from, to string, kind interchange.Kind, c Converter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.converters[key{normalize(from), normalize(to), kind}] = c
}

// RegisterTypeSystem adds or replaces the type system for ts.Name.
func (t *Table) RegisterTypeSystem(ts TypeSystem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.systems[normalize(ts.Name)] = ts
}

// Convert produces a copy of v shaped for the to language. The input is
// never modified. Opaque values have no mapping.
func (t *Table) Convert(v interchange.Value, from, to string) (interchange.Value, error) {
	if v == nil {
		v = interchange.Null{}
	}
	if v.Kind() == interchange.KindOpaque {
		return nil, fmt.Errorf("%w: %s value cannot leave %s", ErrUnsupportedType, describe(v), from)
	}

	from, to = normalize(from), normalize(to)
	c, src, dst := t.lookup(from, to, v.Kind())

	if c != nil {
		out, err := c(interchange.Clone(v))
		if err != nil {
			return nil, fmt.Errorf("convert %s from %s to %s: %w", v.Kind(), from, to, err)
		}
		return out, nil
	}

	exported, err := src.Export(interchange.Clone(v))
	if err != nil {
		return nil, err
	}
	return dst.Import(exported)
}

func (t *Table) lookup(from, to string, kind interchange.Kind) (Converter, TypeSystem, TypeSystem) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	src, ok := t.systems[from]
	if !ok {
		src = generic
	}
	dst, ok := t.systems[to]
	if !ok {
		dst = generic
	}

	for _, k := range []key{
		{from, to, kind},
		{from, Any, kind},
		{Any, to, kind},
		{Any, Any, kind},
	} {
		if c, ok := t.converters[k]; ok {
			return c, src, dst
		}
	}
	return nil, src, dst
}

func describe(v interchange.Value) string {
	if o, ok := v.(interchange.Opaque); ok && o.Type != "" {
		return o.Type
	}
	return v.Kind().String()
}
