package bridge

import (
	"fmt"

	"github.com/tailored-agentic-units/polyglot/interchange"
)

// TypeSystem adapts interchange values to what one language can hold.
// Export normalizes a value read from the language; Import shapes a value
// for binding into it and reports ErrUnsupportedType when it cannot.
type TypeSystem struct {
	Name   string
	Export func(interchange.Value) (interchange.Value, error)
	Import func(interchange.Value) (interchange.Value, error)
}

// generic holds every non-opaque shape as is.
var generic = TypeSystem{
	Name:   "generic",
	Export: identity,
	Import: identity,
}

func identity(v interchange.Value) (interchange.Value, error) {
	return v, nil
}

func builtinTypeSystems() []TypeSystem {
	return []TypeSystem{
		{Name: "R", Export: exportR, Import: importR},
		{Name: "Python", Export: identity, Import: identity},
		{Name: "SoS", Export: identity, Import: identity},
		{Name: "Go", Export: identity, Import: importGo},
		{Name: "JavaScript", Export: identity, Import: importJavaScript},
	}
}

// exportR unwraps length-1 atomic vectors, which is how R holds scalars.
func exportR(v interchange.Value) (interchange.Value, error) {
	vec, ok := v.(interchange.Vector)
	if ok && len(vec) == 1 && vec[0].Kind().IsScalar() {
		return vec[0], nil
	}
	return v, nil
}

// importR wraps scalars as length-1 vectors. R vectors are atomic, so
// mixed element kinds have no mapping.
func importR(v interchange.Value) (interchange.Value, error) {
	switch x := v.(type) {
	case interchange.Number, interchange.String, interchange.Bool:
		return interchange.Vector{x}, nil
	case interchange.Vector:
		if _, ok := x.ElemKind(); !ok {
			return nil, fmt.Errorf("%w: R vectors hold a single scalar kind", ErrUnsupportedType)
		}
		return x, nil
	case interchange.Table:
		for _, col := range x.Columns {
			if _, ok := interchange.Vector(col.Values).ElemKind(); !ok {
				return nil, fmt.Errorf("%w: column %q mixes kinds", ErrUnsupportedType, col.Name)
			}
		}
		return x, nil
	}
	return v, nil
}

func importGo(v interchange.Value) (interchange.Value, error) {
	switch x := v.(type) {
	case interchange.Table:
		return nil, fmt.Errorf("%w: Go has no table type", ErrUnsupportedType)
	case interchange.Vector:
		if _, ok := x.ElemKind(); !ok {
			return nil, fmt.Errorf("%w: Go slices hold a single scalar kind", ErrUnsupportedType)
		}
	}
	return v, nil
}

func importJavaScript(v interchange.Value) (interchange.Value, error) {
	if v.Kind() == interchange.KindTable {
		return nil, fmt.Errorf("%w: JavaScript has no table type", ErrUnsupportedType)
	}
	return v, nil
}
