package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"guide-rpc/message"
	"guide-rpc/rpclog"

	"github.com/sirupsen/logrus"
)

// Recover turns a panic below it into a failure response.
func Recover(logger *logrus.Entry) Middleware {
	log := rpclog.Or(logger, "server")
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) (resp *message.RpcResponse) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(logrus.Fields{
						"service": req.ServiceKey(),
						"method":  req.MethodName,
						"stack":   string(debug.Stack()),
					}).Errorf("handler panic: %v", r)
					resp = message.Failure(req.RequestID, message.CodeFail, fmt.Sprintf("internal error: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
