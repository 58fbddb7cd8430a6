package server

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/people-extractor/internal/common"
)

// decode reads a Struct payload into a JSON-tagged request type.
func decode(in *structpb.Struct, dst any) error {
	if in == nil {
		return nil
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return common.ValidationErr("malformed request: " + err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return common.ValidationErr("malformed request: " + err.Error())
	}
	return nil
}

// encode renders a JSON-tagged response type as a Struct.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, common.WrapError(err, "encode response")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, common.WrapError(err, "encode response")
	}
	return out, nil
}
