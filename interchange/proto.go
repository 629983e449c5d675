package interchange

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the tagged struct encoding.
const (
	fieldKind    = "kind"
	fieldValue   = "value"
	fieldItems   = "items"
	fieldColumns = "columns"
	fieldName    = "name"
	fieldValues  = "values"
	fieldType    = "type"
	fieldRepr    = "repr"
)

// ToProto encodes v as a tagged structpb.Value:
//
//	{"kind": "vector", "items": [{"kind": "number", "value": 1}]}
func ToProto(v Value) *structpb.Value {
	fields := map[string]*structpb.Value{
		fieldKind: structpb.NewStringValue(kindOf(v).String()),
	}

	switch x := v.(type) {
	case Number:
		fields[fieldValue] = structpb.NewNumberValue(float64(x))
	case String:
		fields[fieldValue] = structpb.NewStringValue(string(x))
	case Bool:
		fields[fieldValue] = structpb.NewBoolValue(bool(x))
	case Vector:
		fields[fieldItems] = listOf(x)
	case Table:
		cols := make([]*structpb.Value, len(x.Columns))
		for i, col := range x.Columns {
			cols[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				fieldName:   structpb.NewStringValue(col.Name),
				fieldValues: listOf(col.Values),
			}})
		}
		fields[fieldColumns] = structpb.NewListValue(&structpb.ListValue{Values: cols})
	case Opaque:
		fields[fieldType] = structpb.NewStringValue(x.Type)
		fields[fieldRepr] = structpb.NewStringValue(x.Repr)
	}

	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func listOf(values []Value) *structpb.Value {
	items := make([]*structpb.Value, len(values))
	for i, item := range values {
		items[i] = ToProto(item)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: items})
}

// FromProto decodes a tagged structpb.Value produced by ToProto.
func FromProto(pv *structpb.Value) (Value, error) {
	s := pv.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("interchange value must be a struct, got %T", pv.GetKind())
	}
	kind, err := ParseKind(s.Fields[fieldKind].GetStringValue())
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindNull:
		return Null{}, nil
	case KindNumber:
		n, ok := s.Fields[fieldValue].GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("number value missing")
		}
		return Number(n.NumberValue), nil
	case KindString:
		return String(s.Fields[fieldValue].GetStringValue()), nil
	case KindBool:
		return Bool(s.Fields[fieldValue].GetBoolValue()), nil
	case KindVector:
		items, err := valuesOf(s.Fields[fieldItems])
		if err != nil {
			return nil, err
		}
		return Vector(items), nil
	case KindTable:
		var table Table
		for _, c := range s.Fields[fieldColumns].GetListValue().GetValues() {
			cs := c.GetStructValue()
			values, err := valuesOf(cs.GetFields()[fieldValues])
			if err != nil {
				return nil, err
			}
			table.Columns = append(table.Columns, Column{
				Name:   cs.GetFields()[fieldName].GetStringValue(),
				Values: values,
			})
		}
		if err := table.Validate(); err != nil {
			return nil, err
		}
		return table, nil
	default:
		return Opaque{
			Type: s.Fields[fieldType].GetStringValue(),
			Repr: s.Fields[fieldRepr].GetStringValue(),
		}, nil
	}
}

func valuesOf(list *structpb.Value) ([]Value, error) {
	raw := list.GetListValue().GetValues()
	out := make([]Value, len(raw))
	for i, item := range raw {
		v, err := FromProto(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Marshal encodes v as protojson.
func Marshal(v Value) ([]byte, error) {
	return protojson.Marshal(ToProto(v))
}

// Unmarshal decodes protojson produced by Marshal.
func Unmarshal(data []byte) (Value, error) {
	var pv structpb.Value
	if err := protojson.Unmarshal(data, &pv); err != nil {
		return nil, fmt.Errorf("decode interchange value: %w", err)
	}
	return FromProto(&pv)
}
