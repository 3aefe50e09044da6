package codec

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"guide-rpc/message"

	"github.com/pkg/errors"
)

var errShortBuffer = errors.New("BinaryCodec: truncated data")

// BinaryCodec writes RpcRequest and RpcResponse as length-prefixed fields, big-endian.
//
//	request:  tag(1) requestId interfaceName methodName version group   (uint16 len + bytes each)
//	          paramCount(uint16) { param(uint32 len + bytes) paramType(uint16 len + bytes) }...
//	response: tag(1) requestId(uint16 len) code(uint32) message(uint32 len) data(uint32 len)
//
// Encode fails when a uint16-prefixed field or the parameter count exceeds math.MaxUint16.
type BinaryCodec struct{}

const (
	tagRequest  byte = 1
	tagResponse byte = 2
)

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *message.RpcRequest:
		if len(msg.Parameters) != len(msg.ParamTypes) {
			return nil, errors.New("BinaryCodec: parameters and paramTypes differ in length")
		}
		w := &writer{}
		w.byte(tagRequest)
		w.str16(msg.RequestID)
		w.str16(msg.InterfaceName)
		w.str16(msg.MethodName)
		w.str16(msg.Version)
		w.str16(msg.Group)
		w.count16("parameter count", len(msg.Parameters))
		for i, p := range msg.Parameters {
			w.bytes32(p)
			w.str16(msg.ParamTypes[i])
		}
		return w.finish()
	case *message.RpcResponse:
		w := &writer{}
		w.byte(tagResponse)
		w.str16(msg.RequestID)
		w.uint32(uint32(msg.Code))
		w.str32(msg.Message)
		w.bytes32(msg.Data)
		return w.finish()
	}
	return nil, errors.Errorf("BinaryCodec: unsupported type %T", v)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	r := &reader{buf: data}
	tag := r.byte()
	switch msg := v.(type) {
	case *message.RpcRequest:
		if tag != tagRequest {
			return errors.Errorf("BinaryCodec: expect request tag, got %d", tag)
		}
		msg.RequestID = r.str16()
		msg.InterfaceName = r.str16()
		msg.MethodName = r.str16()
		msg.Version = r.str16()
		msg.Group = r.str16()
		n := int(r.uint16())
		msg.Parameters = make([]json.RawMessage, 0, n)
		msg.ParamTypes = make([]string, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Parameters = append(msg.Parameters, r.bytes32())
			msg.ParamTypes = append(msg.ParamTypes, r.str16())
		}
	case *message.RpcResponse:
		if tag != tagResponse {
			return errors.Errorf("BinaryCodec: expect response tag, got %d", tag)
		}
		msg.RequestID = r.str16()
		msg.Code = message.Code(r.uint32())
		msg.Message = string(r.bytes32())
		msg.Data = r.bytes32()
	default:
		return errors.Errorf("BinaryCodec: unsupported type %T", v)
	}
	return r.err
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// writer keeps the first encoding error; finish reports it.
type writer struct {
	buf []byte
	err error
}

func (w *writer) finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func (w *writer) count16(field string, n int) {
	if n > math.MaxUint16 && w.err == nil {
		w.err = errors.Errorf("BinaryCodec: %s %d exceeds %d", field, n, math.MaxUint16)
	}
	w.uint16(uint16(n))
}

func (w *writer) byte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) uint16(n uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, n) }

func (w *writer) uint32(n uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, n) }

func (w *writer) str16(s string) {
	w.count16("string length", len(s))
	w.buf = append(w.buf, s...)
}

func (w *writer) str32(s string) {
	w.uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes32(b []byte) {
	w.uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// reader records the first error and returns zero values afterwards.
type reader struct {
	buf    []byte
	offset int
	err    error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.offset+n > len(r.buf) {
		r.err = errShortBuffer
		return nil
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *reader) byte() byte {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) str16() string {
	return string(r.next(int(r.uint16())))
}

func (r *reader) bytes32() []byte {
	n := int(r.uint32())
	b := r.next(n)
	if b == nil || n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
