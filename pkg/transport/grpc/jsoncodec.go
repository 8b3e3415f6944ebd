package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a simple gRPC codec for JSON payloads, allowing us to avoid
// protobuf codegen for the vote calls. Command and reply documents keep
// their wire encoding (including timestamp wrapping) because they marshal
// through their own JSON methods.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                            { return "json" }

func init() {
	// Register once at package init.
	encoding.RegisterCodec(jsonCodec{})
}
