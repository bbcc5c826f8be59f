// Package rpcutil registers a JSON codec for grpc-go, so MetaClient
// and AggClient can speak the Metadata/Aggregation services' wire
// contract with plain Go structs instead of requiring generated
// protobuf bindings to be checked into this module. Real deployments
// still define the service contract in a .proto committed alongside
// the caller packages; this codec lets the hand-written Go structs in
// internal/rpc/* stand in for the protoc-gen-go output without a build
// step. grpc-go documents exactly this extension point via
// encoding.RegisterCodec.
package rpcutil

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const JSONCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpcutil: json unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
