package provider

import (
	"context"
	"encoding/json"
	"time"

	"guide-rpc/message"
	"guide-rpc/rpclog"
	"guide-rpc/rpcerr"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Handler dispatches requests to the services of a Table.
type Handler struct {
	table *Table
	log   *logrus.Entry
}

// NewHandler creates a handler over table.
func NewHandler(table *Table, logger *logrus.Entry) *Handler {
	return &Handler{table: table, log: rpclog.Or(logger, "handler")}
}

// Handle invokes the requested method and returns its encoded result, nil for methods that
// only return an error. The error is ServiceNotFound when the key is not in the table and
// DispatchFailure for everything that goes wrong after that.
func (h *Handler) Handle(ctx context.Context, req *message.RpcRequest) (json.RawMessage, error) {
	svc, err := h.table.service(req.ServiceKey())
	if err != nil {
		return nil, err
	}
	return svc.call(ctx, req)
}

// Serve is Handle shaped as a middleware.HandlerFunc: errors become failure responses.
func (h *Handler) Serve(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
	start := time.Now()
	data, err := h.Handle(ctx, req)
	log := h.log.WithFields(logrus.Fields{
		"service": req.ServiceKey(),
		"method":  req.MethodName,
		"elapsed": time.Since(start),
	})
	if err != nil {
		log.WithError(err).Debug("dispatch failed")
		return ErrorResponse(req.RequestID, err)
	}
	log.Debug("dispatched")
	return message.Success(req.RequestID, data)
}

// ErrorResponse converts err into a failure response for requestID.
func ErrorResponse(requestID string, err error) *message.RpcResponse {
	code := message.CodeFail
	if rpcerr.Is(err, rpcerr.ServiceNotFound) {
		code = message.CodeNotFound
	}
	msg := err.Error()
	var e *rpcerr.Error
	if errors.As(err, &e) {
		msg = e.Detail()
	}
	return message.Failure(requestID, code, msg)
}
