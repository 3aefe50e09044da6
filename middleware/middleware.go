// Package middleware wraps the provider's request handler.
//
// Middlewares compose like an onion: Chain(A, B, C)(h) runs A before B before C before h,
// and their post-processing in the opposite order. Every middleware must return a response;
// failures are failure responses, never nil.
package middleware

import (
	"context"

	"guide-rpc/message"
)

// HandlerFunc serves one request.
type HandlerFunc func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse

// Middleware decorates a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
