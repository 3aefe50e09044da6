package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"guide-rpc/codec"
	"guide-rpc/example/hello"
	"guide-rpc/message"
	"guide-rpc/protocol"
	"guide-rpc/provider"
	"guide-rpc/transport"
)

func startServer(t *testing.T, handler func(context.Context, *message.RpcRequest) *message.RpcResponse) *Server {
	t.Helper()
	svr := NewServer(handler, nil)
	if err := svr.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svr.Stop(time.Second) })
	return svr
}

func helloHandler(t *testing.T) func(context.Context, *message.RpcRequest) *message.RpcResponse {
	table := provider.NewTable()
	cfg := hello.ServiceConfig()
	if err := table.AddService(cfg.ServiceKey(), cfg.Service); err != nil {
		t.Fatal(err)
	}
	return provider.NewHandler(table, nil).Serve
}

func helloRequest(t *testing.T, method string, args ...any) *message.RpcRequest {
	t.Helper()
	params, types, err := message.EncodeParams(args...)
	if err != nil {
		t.Fatal(err)
	}
	return &message.RpcRequest{
		RequestID:     "42",
		InterfaceName: hello.Interface,
		MethodName:    method,
		Parameters:    params,
		ParamTypes:    types,
		Version:       hello.Version,
		Group:         hello.Group,
	}
}

// roundTrip writes req as one frame and reads the single response frame.
func roundTrip(t *testing.T, addr string, ct codec.CodecType, req *message.RpcRequest) (*protocol.Header, *message.RpcResponse, net.Conn) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := transport.WriteFrame(conn, ct, protocol.MsgTypeRequest, 123, req); err != nil {
		t.Fatal(err)
	}
	header, resp, err := transport.ReadResponse(conn)
	if err != nil {
		t.Fatal(err)
	}
	return header, resp, conn
}

func TestServer(t *testing.T) {
	svr := startServer(t, helloHandler(t))

	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeBinary} {
		header, resp, conn := roundTrip(t, svr.Addr().String(), ct, helloRequest(t, "hello", &hello.Hello{Description: "a greeting"}))

		if header.Seq != 123 || header.CodecType != byte(ct) {
			t.Fatalf("response header should echo the request: %+v", header)
		}
		if !resp.OK() || resp.RequestID != "42" {
			t.Fatalf("unexpected response %+v", resp)
		}
		var result string
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			t.Fatal(err)
		}
		if result != "Hello description is a greeting" {
			t.Fatalf("unexpected result %q", result)
		}

		// one exchange per connection: the server closes after answering
		conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
			t.Fatalf("expect the server to close the connection, got %v", err)
		}
	}
}

func TestServerFailureResponses(t *testing.T) {
	svr := startServer(t, helloHandler(t))
	addr := svr.Addr().String()

	_, resp, _ := roundTrip(t, addr, codec.CodecTypeJSON, helloRequest(t, "goodbye", "x"))
	if resp.Code != message.CodeFail || resp.Message == "" {
		t.Fatalf("expect a dispatch failure response, got %+v", resp)
	}

	req := helloRequest(t, "hello", &hello.Hello{})
	req.Version = "version2"
	_, resp, _ = roundTrip(t, addr, codec.CodecTypeJSON, req)
	if resp.Code != message.CodeNotFound {
		t.Fatalf("expect a not-found response, got %+v", resp)
	}
}

func TestServerDropsMalformedFrame(t *testing.T) {
	svr := startServer(t, helloHandler(t))

	conn, err := net.Dial("tcp", svr.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.Write([]byte("definitely not a frame"))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(make([]byte, 64))
	if n != 0 || err != io.EOF {
		t.Fatalf("expect the connection to be dropped without a response, got %d bytes, %v", n, err)
	}
}

func TestServerDropsUndecodableBody(t *testing.T) {
	svr := startServer(t, helloHandler(t))

	conn, err := net.Dial("tcp", svr.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	body := []byte("{broken json")
	protocol.Encode(conn, &protocol.Header{MsgType: protocol.MsgTypeRequest, Seq: 1}, body)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if n, err := conn.Read(make([]byte, 64)); n != 0 || err != io.EOF {
		t.Fatalf("expect the connection to be dropped, got %d bytes, %v", n, err)
	}
}

func TestServerStopWaitsForRequests(t *testing.T) {
	release := make(chan struct{})
	svr := NewServer(func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
		<-release
		return message.Success(req.RequestID, nil)
	}, nil)
	if err := svr.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	conn, err := net.Dial("tcp", svr.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	transport.WriteFrame(conn, codec.CodecTypeJSON, protocol.MsgTypeRequest, 1, &message.RpcRequest{RequestID: "slow"})
	time.Sleep(100 * time.Millisecond)

	if err := svr.Stop(50 * time.Millisecond); err == nil {
		t.Fatal("expect Stop to time out while a request is in flight")
	}
	if _, err := net.DialTimeout("tcp", svr.Addr().String(), 100*time.Millisecond); err == nil {
		t.Fatal("listener should be closed")
	}

	close(release)
	if _, resp, err := transport.ReadResponse(conn); err != nil || resp.RequestID != "slow" {
		t.Fatalf("in-flight request should still be answered: %+v, %v", resp, err)
	}
	if err := svr.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestGorpcServerRejectsUnknownCodec(t *testing.T) {
	svr := NewGorpcServer(helloHandler(t), nil)
	body, err := (&codec.JSONCodec{}).Encode(helloRequest(t, "hello", &hello.Hello{Message: "m", Description: "d"}))
	if err != nil {
		t.Fatal(err)
	}

	reply := svr.serve("test", transport.GorpcRequest{CodecType: 9, Body: body})
	if resp, ok := reply.(*transport.GorpcResponse); !ok || resp.Body != nil {
		t.Fatalf("expect an empty reply for an unknown codec, got %#v", reply)
	}

	reply = svr.serve("test", transport.GorpcRequest{CodecType: byte(codec.CodecTypeJSON), Body: body})
	resp, ok := reply.(*transport.GorpcResponse)
	if !ok || len(resp.Body) == 0 {
		t.Fatalf("expect a response body, got %#v", reply)
	}
	var decoded message.RpcResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil || !decoded.OK() {
		t.Fatalf("expect success, got %+v, %v", decoded, err)
	}
}
