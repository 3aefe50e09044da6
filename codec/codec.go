// Package codec serializes RpcRequest and RpcResponse bodies.
//
// The codec type travels in the frame header, so provider and consumer agree on the format
// per connection without any negotiation.
package codec

import (
	"guide-rpc/rpcerr"

	"github.com/pkg/errors"
)

// CodecType is the codec byte carried in the frame header.
type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

// Codec turns a *message.RpcRequest or *message.RpcResponse into a frame body and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec returns the codec for a header byte. Unknown bytes are an error.
func GetCodec(codecType CodecType) (Codec, error) {
	switch codecType {
	case CodecTypeJSON:
		return &JSONCodec{}, nil
	case CodecTypeBinary:
		return &BinaryCodec{}, nil
	}
	return nil, errors.Errorf("unknown codec type %d", codecType)
}

// ParseCodecType maps a configuration name to a codec type.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "binary":
		return CodecTypeBinary, nil
	}
	return 0, rpcerr.New(rpcerr.ConfigurationError, "unknown codec %q", name)
}
