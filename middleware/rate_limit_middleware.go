package middleware

import (
	"context"

	"guide-rpc/message"

	"golang.org/x/time/rate"
)

// RateLimit rejects requests beyond r per second, allowing bursts of burst (token bucket).
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			if !limiter.Allow() {
				return message.Failure(req.RequestID, message.CodeFail, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
