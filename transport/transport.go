// Package transport carries one RpcRequest to a provider and brings its result back.
//
// Two client transports implement RequestTransport:
//   - SocketClient: framed TCP, exactly one request/response pair per connection,
//     the connection is closed after the exchange on every path
//   - GorpcClient: github.com/valyala/gorpc, one multiplexed client per provider address
//
// Both resolve the provider through a registry.ServiceDiscovery on every call.
package transport

import (
	"context"
	"encoding/json"

	"guide-rpc/message"
	"guide-rpc/rpcerr"
)

// Transport kind names used by the extension registry and configuration.
const (
	NameSocket = "socket"
	NameGorpc  = "gorpc"
)

// RequestTransport sends req to a provider of its service and blocks for the result.
//
// Discovery errors are returned unchanged. A provider that cannot be reached is a
// ConnectionFailure; a failure response becomes ServiceNotFound or DispatchFailure.
type RequestTransport interface {
	SendRequest(ctx context.Context, req *message.RpcRequest) (json.RawMessage, error)
	Close() error
}

// Result unwraps resp, the answer to req.
func Result(req *message.RpcRequest, resp *message.RpcResponse) (json.RawMessage, error) {
	if resp.RequestID != req.RequestID {
		return nil, rpcerr.New(rpcerr.Transport, "response %q does not answer request %q", resp.RequestID, req.RequestID)
	}
	switch resp.Code {
	case message.CodeSuccess:
		return resp.Data, nil
	case message.CodeNotFound:
		return nil, rpcerr.New(rpcerr.ServiceNotFound, "%s", resp.Message)
	default:
		return nil, rpcerr.New(rpcerr.DispatchFailure, "%s", resp.Message)
	}
}
