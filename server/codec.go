package server

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/weft/store"
)

// codecName is the content subtype on both transports:
// application/cbor for Connect, application/grpc+cbor for gRPC.
const codecName = "cbor"

// cborCodec serializes messages as canonical CBOR. It satisfies both
// connect.Codec and grpc's encoding.Codec.
type cborCodec struct{}

func (cborCodec) Name() string { return codecName }

func (cborCodec) Marshal(v any) ([]byte, error) {
	return store.EncMode().Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
