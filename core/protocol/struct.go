package protocol

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a message to a structpb.Struct through its JSON form.
func ToStruct(msg any) (*structpb.Struct, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}

	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return s, nil
}

// FromStruct decodes a structpb.Struct into a message of type T.
//
//	req, err := protocol.FromStruct[protocol.ExecuteRequest](s)
func FromStruct[T any](s *structpb.Struct) (T, error) {
	var msg T
	if s == nil {
		return msg, fmt.Errorf("decode %T: empty message", msg)
	}

	data, err := protojson.Marshal(s)
	if err != nil {
		return msg, fmt.Errorf("decode %T: %w", msg, err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode %T: %w", msg, err)
	}
	return msg, nil
}
