// Package client turns method calls into RpcRequests and sends them through a transport.
//
//	cli := client.NewClient(rt)
//	var greeting string
//	err := cli.Service(key).Call(ctx, "hello", &greeting, &hello.Hello{Description: "hi"})
//
// Every error returned by Call is an *rpcerr.Error.
package client

import (
	"context"
	"encoding/json"
	"time"

	"guide-rpc/message"
	"guide-rpc/rpclog"
	"guide-rpc/rpcerr"
	"guide-rpc/transport"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client issues calls against any service key.
type Client struct {
	transport transport.RequestTransport
	retry     RetryPolicy
	log       *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithRetry retries calls that failed with ConnectionFailure up to maxRetries times, waiting
// baseDelay, then twice as long, and so on. Calls are not retried by default.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) { c.retry = RetryPolicy{MaxRetries: maxRetries, BaseDelay: baseDelay} }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Client) { c.log = rpclog.Or(logger, "client") }
}

// NewClient creates a client sending through rt.
func NewClient(rt transport.RequestTransport, opts ...Option) *Client {
	c := &Client{transport: rt, log: rpclog.Default("client")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequest builds the request for method on key with a fresh request id.
func NewRequest(key message.ServiceKey, method string, args ...any) (*message.RpcRequest, error) {
	params, types, err := message.EncodeParams(args...)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.Transport, err, "encode arguments of %s", method)
	}
	return &message.RpcRequest{
		RequestID:     uuid.NewString(),
		InterfaceName: key.Interface,
		MethodName:    method,
		Parameters:    params,
		ParamTypes:    types,
		Version:       key.Version,
		Group:         key.Group,
	}, nil
}

// Call invokes method on the service identified by key and decodes the result into reply.
// reply may be nil when the result is not needed.
func (c *Client) Call(ctx context.Context, key message.ServiceKey, method string, reply any, args ...any) error {
	req, err := NewRequest(key, method, args...)
	if err != nil {
		return err
	}

	var data json.RawMessage
	err = c.retry.do(ctx, func(attempt int) error {
		if attempt > 0 {
			c.log.WithFields(logrus.Fields{
				"service": req.ServiceKey(),
				"method":  method,
				"attempt": attempt,
			}).Warn("retrying call")
		}
		var err error
		data, err = c.transport.SendRequest(ctx, req)
		return err
	})
	if err != nil {
		if rpcerr.KindOf(err) == rpcerr.Unknown {
			return rpcerr.Wrap(rpcerr.Transport, err, "call %s.%s", req.ServiceKey(), method)
		}
		return err
	}

	if reply == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, reply); err != nil {
		return rpcerr.Wrap(rpcerr.Transport, err, "decode result of %s.%s", req.ServiceKey(), method)
	}
	return nil
}

// Service returns a stub bound to key.
func (c *Client) Service(key message.ServiceKey) *Stub {
	return &Stub{client: c, key: key}
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Stub calls the methods of one service.
type Stub struct {
	client *Client
	key    message.ServiceKey
}

// Call invokes method with args and decodes the result into reply.
func (s *Stub) Call(ctx context.Context, method string, reply any, args ...any) error {
	return s.client.Call(ctx, s.key, method, reply, args...)
}
