package provider

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"guide-rpc/message"
	"guide-rpc/rpcerr"

	"github.com/pkg/errors"
)

type Point struct {
	X, Y int
}

type Foo struct {
	prefix string
}

func (f *Foo) Hello(name string) (string, error) { return f.prefix + name, nil }

func (f *Foo) Add(a, b int) (int, error) { return a + b, nil }

func (f *Foo) Move(p *Point, dx int) (Point, error) { return Point{p.X + dx, p.Y}, nil }

func (f *Foo) Fail(msg string) error { return errors.New(msg) }

func (f *Foo) Explode() error { panic("boom") }

func (f *Foo) Deadline(ctx context.Context, n int) (bool, error) {
	_, ok := ctx.Deadline()
	return ok, nil
}

// not callable: wrong result shape
func (f *Foo) Ignored(n int) int { return n }

const fooKey = "Foo::1.0::groupA"

func request(method string, args ...any) *message.RpcRequest {
	params, types, err := message.EncodeParams(args...)
	if err != nil {
		panic(err)
	}
	return &message.RpcRequest{
		RequestID:     "req-1",
		InterfaceName: "Foo",
		MethodName:    method,
		Parameters:    params,
		ParamTypes:    types,
		Version:       "1.0",
		Group:         "groupA",
	}
}

func newHandler(t *testing.T) *Handler {
	table := NewTable()
	if err := table.AddService(fooKey, &Foo{prefix: "hello "}); err != nil {
		t.Fatal(err)
	}
	return NewHandler(table, nil)
}

func decode[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestAddServiceIdempotent(t *testing.T) {
	table := NewTable()
	first := &Foo{prefix: "first "}
	if err := table.AddService(fooKey, first); err != nil {
		t.Fatal(err)
	}
	if err := table.AddService(fooKey, &Foo{prefix: "second "}); err != nil {
		t.Fatal(err)
	}

	got, err := table.GetService(fooKey)
	if err != nil {
		t.Fatal(err)
	}
	if got != first {
		t.Fatal("second registration must not replace the first")
	}
	if keys := table.Keys(); len(keys) != 1 {
		t.Fatalf("expect one key, got %v", keys)
	}
}

func TestAddServiceRejectsUnusable(t *testing.T) {
	table := NewTable()
	if err := table.AddService(fooKey, nil); err == nil {
		t.Fatal("expect an error for a nil instance")
	}
	if err := table.AddService(fooKey, struct{}{}); err == nil {
		t.Fatal("expect an error for a type without methods")
	}
	if err := table.AddService("", &Foo{}); err == nil {
		t.Fatal("expect an error for an empty key")
	}
}

func TestGetServiceNotFound(t *testing.T) {
	_, err := NewTable().GetService(fooKey)
	if !rpcerr.Is(err, rpcerr.ServiceNotFound) {
		t.Fatalf("expect ServiceNotFound, got %v", err)
	}
}

func TestMethodRegistry(t *testing.T) {
	table := NewTable()
	table.AddService(fooKey, &Foo{})
	methods, err := table.Methods(fooKey)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Add", "Deadline", "Explode", "Fail", "Hello", "Move"}
	if strings.Join(methods, ",") != strings.Join(want, ",") {
		t.Fatalf("expect %v, got %v", want, methods)
	}
}

func TestHandleHello(t *testing.T) {
	h := newHandler(t)

	// lower camel case method names resolve like the exported ones
	for _, name := range []string{"hello", "Hello"} {
		data, err := h.Handle(context.Background(), request(name, "world"))
		if err != nil {
			t.Fatal(err)
		}
		if got := decode[string](t, data); got != "hello world" {
			t.Fatalf("expect %q, got %q", "hello world", got)
		}
	}
}

func TestHandleStructs(t *testing.T) {
	h := newHandler(t)

	data, err := h.Handle(context.Background(), request("add", 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	if got := decode[int](t, data); got != 5 {
		t.Fatalf("expect 5, got %d", got)
	}

	data, err = h.Handle(context.Background(), request("move", &Point{1, 2}, 10))
	if err != nil {
		t.Fatal(err)
	}
	if got := decode[Point](t, data); got != (Point{11, 2}) {
		t.Fatalf("unexpected point %+v", got)
	}
}

func TestHandleContext(t *testing.T) {
	h := newHandler(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	data, err := h.Handle(ctx, request("deadline", 1))
	if err != nil {
		t.Fatal(err)
	}
	if !decode[bool](t, data) {
		t.Fatal("the caller's context should reach the method")
	}
}

func untyped(req *message.RpcRequest) *message.RpcRequest {
	req.ParamTypes = nil
	return req
}

func TestHandleDispatchFailures(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *message.RpcRequest
		want string
	}{
		{"no such method", request("goodbye", "world"), "goodbye"},
		{"not callable", request("ignored", 1), "ignored"},
		{"parameter type mismatch", request("hello", 42), "hello(int)"},
		{"parameter count mismatch", request("add", 1), "add(int)"},
		{"method error", request("fail", "bad input"), "bad input"},
		{"panic", request("explode"), "boom"},
		{"missing parameter types", untyped(request("hello", "world")), "hello()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(ctx, tt.req)
			if !rpcerr.Is(err, rpcerr.DispatchFailure) {
				t.Fatalf("expect DispatchFailure, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expect %q in %q", tt.want, err)
			}
		})
	}
}

func TestHandleUndecodableParameter(t *testing.T) {
	h := newHandler(t)
	req := request("hello", "world")
	req.Parameters[0] = json.RawMessage(`{"not":"a string"}`)

	_, err := h.Handle(context.Background(), req)
	if !rpcerr.Is(err, rpcerr.DispatchFailure) {
		t.Fatalf("expect DispatchFailure, got %v", err)
	}
}

func TestHandleMethodErrorKeepsCause(t *testing.T) {
	h := newHandler(t)
	_, err := h.Handle(context.Background(), request("fail", "bad input"))
	if errors.Cause(err).Error() != "bad input" {
		t.Fatalf("expect the method's error as cause, got %v", errors.Cause(err))
	}
}

func TestHandleUnknownService(t *testing.T) {
	h := newHandler(t)
	req := request("hello", "world")
	req.Version = "2.0"

	_, err := h.Handle(context.Background(), req)
	if !rpcerr.Is(err, rpcerr.ServiceNotFound) {
		t.Fatalf("expect ServiceNotFound, got %v", err)
	}
}

func TestServeResponses(t *testing.T) {
	h := newHandler(t)

	resp := h.Serve(context.Background(), request("hello", "world"))
	if !resp.OK() || resp.RequestID != "req-1" {
		t.Fatalf("unexpected response %+v", resp)
	}

	resp = h.Serve(context.Background(), request("goodbye"))
	if resp.Code != message.CodeFail || resp.Message == "" {
		t.Fatalf("expect a failure response, got %+v", resp)
	}

	req := request("hello", "world")
	req.Group = "other"
	if resp = h.Serve(context.Background(), req); resp.Code != message.CodeNotFound {
		t.Fatalf("expect a not-found response, got %+v", resp)
	}
}

func TestServiceConfigKey(t *testing.T) {
	cfg := ServiceConfig{Service: &Foo{}, Version: "1.0", Group: "groupA"}
	if got := cfg.ServiceKey(); got != fooKey {
		t.Fatalf("expect %s, got %s", fooKey, got)
	}
	cfg.Interface = "Bar"
	if got := cfg.ServiceKey(); got != "Bar::1.0::groupA" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	h := newHandler(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			data, err := h.Handle(context.Background(), request("add", n, n))
			if err != nil {
				t.Error(err)
				return
			}
			var got int
			if err := json.Unmarshal(data, &got); err != nil || got != 2*n {
				t.Errorf("expect %d, got %s (%v)", 2*n, data, err)
			}
		}(i)
	}
	wg.Wait()
}
