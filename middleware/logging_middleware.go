package middleware

import (
	"context"
	"time"

	"guide-rpc/message"
	"guide-rpc/rpclog"

	"github.com/sirupsen/logrus"
)

// Logging logs every request with its service, method, duration and failure.
func Logging(logger *logrus.Entry) Middleware {
	log := rpclog.Or(logger, "server")
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			start := time.Now()
			resp := next(ctx, req)
			entry := log.WithFields(logrus.Fields{
				"service":  req.ServiceKey(),
				"method":   req.MethodName,
				"request":  req.RequestID,
				"duration": time.Since(start),
			})
			if !resp.OK() {
				entry.WithField("code", resp.Code).Warnf("call failed: %s", resp.Message)
			} else {
				entry.Info("call served")
			}
			return resp
		}
	}
}
