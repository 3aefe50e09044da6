package transport

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	"guide-rpc/codec"
	"guide-rpc/message"
	"guide-rpc/protocol"
	"guide-rpc/registry"
	"guide-rpc/rpclog"
	"guide-rpc/rpcerr"

	"github.com/sirupsen/logrus"
)

// DefaultDialTimeout bounds connection establishment.
const DefaultDialTimeout = 5 * time.Second

// SocketClient sends each request over its own TCP connection.
type SocketClient struct {
	discovery   registry.ServiceDiscovery
	codec       codec.CodecType
	dialTimeout time.Duration
	seq         atomic.Uint32
	log         *logrus.Entry
}

// SocketOption configures a SocketClient.
type SocketOption func(*SocketClient)

// WithCodec selects the body encoding of request frames. Providers answer in the same codec.
func WithCodec(ct codec.CodecType) SocketOption {
	return func(c *SocketClient) { c.codec = ct }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) SocketOption {
	return func(c *SocketClient) { c.dialTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) SocketOption {
	return func(c *SocketClient) { c.log = rpclog.Or(logger, "transport") }
}

// NewSocketClient creates a socket transport resolving providers through discovery.
func NewSocketClient(discovery registry.ServiceDiscovery, opts ...SocketOption) *SocketClient {
	c := &SocketClient{
		discovery:   discovery,
		codec:       codec.CodecTypeJSON,
		dialTimeout: DefaultDialTimeout,
		log:         rpclog.Default("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendRequest resolves a provider and performs one exchange with it.
func (c *SocketClient) SendRequest(ctx context.Context, req *message.RpcRequest) (json.RawMessage, error) {
	addr, err := c.discovery.Lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.Exchange(ctx, addr.String(), req)
}

// Exchange dials address, writes req, reads one response and closes the connection.
// The exchange is bounded only by ctx.
func (c *SocketClient) Exchange(ctx context.Context, address string, req *message.RpcRequest) (json.RawMessage, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.log.WithError(err).WithField("address", address).Warn("connect to provider failed")
		return nil, rpcerr.Wrap(rpcerr.ConnectionFailure, err, "connect to %s", address)
	}
	defer conn.Close()

	// unblock reads and writes when ctx ends
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	seq := c.seq.Add(1)
	if err := WriteFrame(conn, c.codec, protocol.MsgTypeRequest, seq, req); err != nil {
		return nil, c.failed(ctx, err)
	}
	header, resp, err := ReadResponse(conn)
	if err != nil {
		return nil, c.failed(ctx, err)
	}
	if header.Seq != seq {
		return nil, rpcerr.New(rpcerr.Transport, "response sequence %d, want %d", header.Seq, seq)
	}
	return Result(req, resp)
}

func (c *SocketClient) failed(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return rpcerr.Wrap(rpcerr.Transport, ctxErr, "request abandoned")
	}
	return err
}

// Close is a no-op: the client holds no connection between calls.
func (c *SocketClient) Close() error {
	return nil
}
