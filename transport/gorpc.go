package transport

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"time"

	"guide-rpc/codec"
	"guide-rpc/message"
	"guide-rpc/registry"
	"guide-rpc/rpclog"
	"guide-rpc/rpcerr"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/gorpc"
)

func init() {
	gob.Register(GorpcRequest{})
	gob.Register(GorpcResponse{})

	gorpc.SetErrorLogger(rpclog.Default("gorpc").Debugf)
}

// DefaultGorpcTimeout bounds one gorpc call.
const DefaultGorpcTimeout = 20 * time.Second

// GorpcRequest is the gorpc message carrying a codec-encoded RpcRequest.
type GorpcRequest struct {
	CodecType byte
	Body      []byte
}

// GorpcResponse carries the codec-encoded RpcResponse, in the codec of the request.
type GorpcResponse struct {
	Body []byte
}

// GorpcClient sends requests through github.com/valyala/gorpc. Unlike SocketClient it keeps
// one multiplexed connection set per provider address until Close.
type GorpcClient struct {
	discovery registry.ServiceDiscovery
	codec     codec.CodecType
	pool      *clientPool
	log       *logrus.Entry
}

// NewGorpcClient creates a gorpc transport. timeout <= 0 means DefaultGorpcTimeout.
func NewGorpcClient(discovery registry.ServiceDiscovery, ct codec.CodecType, timeout time.Duration, logger *logrus.Entry) *GorpcClient {
	if timeout <= 0 {
		timeout = DefaultGorpcTimeout
	}
	return &GorpcClient{
		discovery: discovery,
		codec:     ct,
		pool:      newClientPool(timeout),
		log:       rpclog.Or(logger, "transport"),
	}
}

func (c *GorpcClient) SendRequest(ctx context.Context, req *message.RpcRequest) (json.RawMessage, error) {
	addr, err := c.discovery.Lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	client := c.pool.get(addr.String())
	if client == nil {
		return nil, rpcerr.New(rpcerr.ConnectionFailure, "transport closed")
	}

	cdc, err := codec.GetCodec(c.codec)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.Transport, err, "encode request")
	}
	body, err := cdc.Encode(req)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.Transport, err, "encode request")
	}
	result, err := client.CallAsync(&GorpcRequest{CodecType: byte(c.codec), Body: body})
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.ConnectionFailure, err, "call %s", addr)
	}

	select {
	case <-result.Done:
	case <-ctx.Done():
		return nil, rpcerr.Wrap(rpcerr.Transport, ctx.Err(), "request abandoned")
	}
	if result.Error != nil {
		c.log.WithError(result.Error).WithField("address", addr.String()).Warn("gorpc call failed")
		return nil, clientError(addr.String(), result.Error)
	}

	msg, ok := result.Response.(GorpcResponse)
	if !ok {
		return nil, rpcerr.New(rpcerr.Transport, "unexpected gorpc response %T", result.Response)
	}
	resp := new(message.RpcResponse)
	if err := cdc.Decode(msg.Body, resp); err != nil {
		return nil, rpcerr.Wrap(rpcerr.Transport, err, "decode response")
	}
	return Result(req, resp)
}

func clientError(addr string, err error) error {
	var ce *gorpc.ClientError
	if errors.As(err, &ce) && !ce.Timeout && !ce.Connection {
		return rpcerr.Wrap(rpcerr.Transport, err, "call %s", addr)
	}
	return rpcerr.Wrap(rpcerr.ConnectionFailure, err, "call %s", addr)
}

// Close stops every gorpc client.
func (c *GorpcClient) Close() error {
	c.pool.close()
	return nil
}
