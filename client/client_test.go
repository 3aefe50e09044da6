package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"guide-rpc/message"
	"guide-rpc/rpcerr"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// fakeTransport answers with the queued results, one per call.
type fakeTransport struct {
	results []error
	data    json.RawMessage
	calls   []*message.RpcRequest
}

func (f *fakeTransport) SendRequest(ctx context.Context, req *message.RpcRequest) (json.RawMessage, error) {
	f.calls = append(f.calls, req)
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.data, nil
}

func (f *fakeTransport) Close() error { return nil }

var arithKey = message.ServiceKey{Interface: "Arith", Version: "1.0"}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(arithKey, "add", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(req.RequestID); err != nil {
		t.Fatalf("request id should be a uuid: %v", err)
	}
	if req.ServiceKey() != "Arith::1.0::" || req.MethodName != "add" {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(req.ParamTypes) != 2 || req.ParamTypes[0] != "int" || string(req.Parameters[1]) != "2" {
		t.Fatalf("unexpected parameters %v %s", req.ParamTypes, req.Parameters)
	}

	other, _ := NewRequest(arithKey, "add", 1, 2)
	if other.RequestID == req.RequestID {
		t.Fatal("request ids must be unique")
	}

	if _, err := NewRequest(arithKey, "add", nil); !rpcerr.Is(err, rpcerr.Transport) {
		t.Fatalf("expect an encoding error for a nil argument, got %v", err)
	}
}

func TestCallDecodesReply(t *testing.T) {
	rt := &fakeTransport{data: json.RawMessage(`3`)}
	cli := NewClient(rt)

	var sum int
	if err := cli.Service(arithKey).Call(context.Background(), "add", &sum, 1, 2); err != nil {
		t.Fatal(err)
	}
	if sum != 3 {
		t.Fatalf("expect 3, got %d", sum)
	}
	if err := cli.Call(context.Background(), arithKey, "add", nil, 1, 2); err != nil {
		t.Fatal(err)
	}
}

func TestCallNoRetryByDefault(t *testing.T) {
	rt := &fakeTransport{results: []error{rpcerr.New(rpcerr.ConnectionFailure, "refused")}}
	err := NewClient(rt).Call(context.Background(), arithKey, "add", nil, 1, 2)
	if !rpcerr.Is(err, rpcerr.ConnectionFailure) {
		t.Fatalf("expect ConnectionFailure, got %v", err)
	}
	if len(rt.calls) != 1 {
		t.Fatalf("expect one attempt, got %d", len(rt.calls))
	}
}

func TestCallRetriesConnectionFailure(t *testing.T) {
	refused := rpcerr.New(rpcerr.ConnectionFailure, "refused")
	rt := &fakeTransport{results: []error{refused, refused, nil}, data: json.RawMessage(`3`)}
	cli := NewClient(rt, WithRetry(3, time.Millisecond))

	var sum int
	if err := cli.Call(context.Background(), arithKey, "add", &sum, 1, 2); err != nil {
		t.Fatal(err)
	}
	if len(rt.calls) != 3 || sum != 3 {
		t.Fatalf("expect success on the third attempt, got %d attempts, sum %d", len(rt.calls), sum)
	}
	if rt.calls[0].RequestID != rt.calls[2].RequestID {
		t.Fatal("a retry resends the same request")
	}
}

func TestCallRetryGivesUp(t *testing.T) {
	refused := rpcerr.New(rpcerr.ConnectionFailure, "refused")
	rt := &fakeTransport{results: []error{refused, refused, refused, refused}}
	err := NewClient(rt, WithRetry(2, time.Millisecond)).Call(context.Background(), arithKey, "add", nil, 1, 2)
	if !rpcerr.Is(err, rpcerr.ConnectionFailure) || len(rt.calls) != 3 {
		t.Fatalf("expect 3 attempts and ConnectionFailure, got %d, %v", len(rt.calls), err)
	}
}

func TestCallDoesNotRetryDispatchFailure(t *testing.T) {
	rt := &fakeTransport{results: []error{rpcerr.New(rpcerr.DispatchFailure, "boom")}}
	err := NewClient(rt, WithRetry(3, time.Millisecond)).Call(context.Background(), arithKey, "add", nil, 1, 2)
	if !rpcerr.Is(err, rpcerr.DispatchFailure) || len(rt.calls) != 1 {
		t.Fatalf("dispatch failures must not be retried: %d attempts, %v", len(rt.calls), err)
	}
}

func TestCallWrapsUntypedErrors(t *testing.T) {
	rt := &fakeTransport{results: []error{errors.New("raw io error")}}
	err := NewClient(rt).Call(context.Background(), arithKey, "add", nil, 1, 2)
	if _, ok := err.(*rpcerr.Error); !ok {
		t.Fatalf("expect *rpcerr.Error, got %T", err)
	}
}

func TestCallBadReply(t *testing.T) {
	rt := &fakeTransport{data: json.RawMessage(`"three"`)}
	var sum int
	err := NewClient(rt).Call(context.Background(), arithKey, "add", &sum, 1, 2)
	if !rpcerr.Is(err, rpcerr.Transport) {
		t.Fatalf("expect a decoding error, got %v", err)
	}
}
