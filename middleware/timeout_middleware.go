package middleware

import (
	"context"
	"time"

	"guide-rpc/message"
)

// Timeout answers with a failure when next has not returned within timeout. The handler keeps
// running in the background with a cancelled context.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RpcResponse, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.Failure(req.RequestID, message.CodeFail, "request timed out after "+timeout.String())
			}
		}
	}
}
