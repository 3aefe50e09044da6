package transport

import (
	"io"

	"guide-rpc/codec"
	"guide-rpc/message"
	"guide-rpc/protocol"
	"guide-rpc/rpcerr"
)

// WriteFrame encodes v with the codec ct and writes it as one frame.
func WriteFrame(w io.Writer, ct codec.CodecType, mt protocol.MsgType, seq uint32, v any) error {
	cdc, err := codec.GetCodec(ct)
	if err != nil {
		return rpcerr.Wrap(rpcerr.Transport, err, "encode frame body")
	}
	body, err := cdc.Encode(v)
	if err != nil {
		return rpcerr.Wrap(rpcerr.Transport, err, "encode frame body")
	}
	header := protocol.Header{
		CodecType: byte(ct),
		MsgType:   mt,
		Seq:       seq,
		BodyLen:   uint32(len(body)),
	}
	if err := protocol.Encode(w, &header, body); err != nil {
		return rpcerr.Wrap(rpcerr.Transport, err, "write frame")
	}
	return nil
}

// ReadRequest reads one request frame.
func ReadRequest(r io.Reader) (*protocol.Header, *message.RpcRequest, error) {
	req := new(message.RpcRequest)
	header, err := readFrame(r, protocol.MsgTypeRequest, req)
	if err != nil {
		return nil, nil, err
	}
	return header, req, nil
}

// ReadResponse reads one response frame.
func ReadResponse(r io.Reader) (*protocol.Header, *message.RpcResponse, error) {
	resp := new(message.RpcResponse)
	header, err := readFrame(r, protocol.MsgTypeResponse, resp)
	if err != nil {
		return nil, nil, err
	}
	return header, resp, nil
}

func readFrame(r io.Reader, want protocol.MsgType, v any) (*protocol.Header, error) {
	header, body, err := protocol.Decode(r)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.Transport, err, "read frame")
	}
	if header.MsgType != want {
		return nil, rpcerr.New(rpcerr.Transport, "unexpected message type %d", header.MsgType)
	}
	cdc, err := codec.GetCodec(codec.CodecType(header.CodecType))
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.Transport, err, "read frame")
	}
	if err := cdc.Decode(body, v); err != nil {
		return nil, rpcerr.Wrap(rpcerr.Transport, err, "decode frame body")
	}
	return header, nil
}
