package grpcserver

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName is the gRPC content-subtype of the JSON codec
// ("application/grpc+json").
const CodecName = "json"

// Codec encodes messages as JSON. Protobuf messages, such as the well-known
// emptypb.Empty, go through protojson; plain Go structs through encoding/json.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) {
	if message, ok := v.(proto.Message); ok {
		return protojson.Marshal(message)
	}

	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if message, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, message)
	}

	return json.Unmarshal(data, v)
}
