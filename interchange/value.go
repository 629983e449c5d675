// Package interchange defines the language-neutral values that move between
// sessions. Every value is one of a closed set of tagged variants: null,
// number, string, bool, vector, table, and opaque. Engines translate their
// native objects to and from these variants; the bridge converts between
// language type systems in terms of them.
package interchange

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBool
	KindVector
	KindTable
	KindOpaque
)

var kindNames = [...]string{
	KindNull:   "null",
	KindNumber: "number",
	KindString: "string",
	KindBool:   "bool",
	KindVector: "vector",
	KindTable:  "table",
	KindOpaque: "opaque",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsScalar reports whether values of this kind hold a single element.
func (k Kind) IsScalar() bool {
	return k == KindNumber || k == KindString || k == KindBool
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind %q", s)
}

// Value is a language-neutral representation of a variable's data.
// The set of implementations is closed to this package.
type Value interface {
	Kind() Kind
	isValue()
}

// Null is the absent value (R NULL, Python None, Go nil).
type Null struct{}

// Number is a numeric scalar. Integers are carried as float64.
type Number float64

// String is a text scalar.
type String string

// Bool is a logical scalar.
type Bool bool

// Vector is an ordered sequence of values.
type Vector []Value

// Column is a named column of a Table.
type Column struct {
	Name   string
	Values []Value
}

// Table is a two-dimensional column-oriented table. All columns have the
// same length.
type Table struct {
	Columns []Column
}

// Opaque carries a value that has no neutral representation. Only its type
// name and printed form survive; opaque values never cross languages.
type Opaque struct {
	Type string
	Repr string
}

func (Null) Kind() Kind   { return KindNull }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Bool) Kind() Kind   { return KindBool }
func (Vector) Kind() Kind { return KindVector }
func (Table) Kind() Kind  { return KindTable }
func (Opaque) Kind() Kind { return KindOpaque }

func (Null) isValue()   {}
func (Number) isValue() {}
func (String) isValue() {}
func (Bool) isValue()   {}
func (Vector) isValue() {}
func (Table) isValue()  {}
func (Opaque) isValue() {}

// ElemKind returns the common kind of the vector's elements. The second
// result is false when elements are of mixed kinds or not all scalars.
// An empty vector reports KindNull.
func (v Vector) ElemKind() (Kind, bool) {
	if len(v) == 0 {
		return KindNull, true
	}
	first := kindOf(v[0])
	if !first.IsScalar() {
		return first, false
	}
	for _, item := range v[1:] {
		if kindOf(item) != first {
			return first, false
		}
	}
	return first, true
}

// Rows returns the number of rows in the table.
func (t Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// Validate checks that all columns are named, unique, and equally long.
func (t Table) Validate() error {
	seen := make(map[string]bool, len(t.Columns))
	rows := t.Rows()
	for _, col := range t.Columns {
		if col.Name == "" {
			return fmt.Errorf("table column has empty name")
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate table column %q", col.Name)
		}
		seen[col.Name] = true
		if len(col.Values) != rows {
			return fmt.Errorf("column %q has %d rows, want %d", col.Name, len(col.Values), rows)
		}
	}
	return nil
}

func kindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// Clone returns a deep copy of v. A nil Value clones to Null.
func Clone(v Value) Value {
	switch x := v.(type) {
	case nil:
		return Null{}
	case Vector:
		out := make(Vector, len(x))
		for i, item := range x {
			out[i] = Clone(item)
		}
		return out
	case Table:
		cols := make([]Column, len(x.Columns))
		for i, col := range x.Columns {
			values := make([]Value, len(col.Values))
			for j, item := range col.Values {
				values[j] = Clone(item)
			}
			cols[i] = Column{Name: col.Name, Values: values}
		}
		return Table{Columns: cols}
	default:
		return x
	}
}

// Equal reports whether a and b are structurally equal. NaN numbers are
// equal to each other.
func Equal(a, b Value) bool {
	if kindOf(a) != kindOf(b) {
		return false
	}
	switch x := a.(type) {
	case nil, Null:
		return true
	case Number:
		y := b.(Number)
		if math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
			return true
		}
		return x == y
	case Vector:
		y := b.(Vector)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Table:
		y := b.(Table)
		if len(x.Columns) != len(y.Columns) {
			return false
		}
		for i := range x.Columns {
			if x.Columns[i].Name != y.Columns[i].Name {
				return false
			}
			if !Equal(Vector(x.Columns[i].Values), Vector(y.Columns[i].Values)) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// FromGo converts a native Go value into a Value. Numeric kinds become
// Number, slices and arrays become Vector, and maps of string to slice become
// Table. Anything else is returned as Opaque.
func FromGo(x any) (Value, error) {
	if x == nil {
		return Null{}, nil
	}
	if v, ok := x.(Value); ok {
		return Clone(v), nil
	}
	return fromReflect(reflect.ValueOf(x))
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return Null{}, nil
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return Null{}, nil
		}
		if rv.Kind() == reflect.Interface {
			return fromReflect(rv.Elem())
		}
		return opaque(rv), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null{}, nil
		}
		out := make(Vector, rv.Len())
		for i := range out {
			item, err := fromReflect(rv.Index(i))
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.Type().Elem().Kind() != reflect.Slice {
			return opaque(rv), nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		table := Table{Columns: make([]Column, 0, len(keys))}
		for _, key := range keys {
			col, err := fromReflect(rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())))
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", key, err)
			}
			values, _ := col.(Vector)
			table.Columns = append(table.Columns, Column{Name: key, Values: values})
		}
		if err := table.Validate(); err != nil {
			return nil, err
		}
		return table, nil
	default:
		return opaque(rv), nil
	}
}

func opaque(rv reflect.Value) Opaque {
	repr := ""
	if rv.CanInterface() {
		repr = fmt.Sprintf("%v", rv.Interface())
	}
	return Opaque{Type: rv.Type().String(), Repr: repr}
}
