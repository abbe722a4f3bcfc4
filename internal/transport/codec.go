package transport

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// codecName is registered as a gRPC content-subtype and selected per-call
// via grpc.CallContentSubtype, so the transport never needs generated
// protobuf marshaling code for its message types.
const codecName = "hintmgr-msgpack"

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack codec: marshal failed: %w", err)
	}
	return data, nil
}

func (msgpackCodec) Unmarshal(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack codec: unmarshal failed: %w", err)
	}
	return nil
}

func (msgpackCodec) Name() string {
	return codecName
}
