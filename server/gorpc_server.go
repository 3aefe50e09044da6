package server

import (
	"context"
	"sync"
	"time"

	"guide-rpc/codec"
	"guide-rpc/message"
	"guide-rpc/middleware"
	"guide-rpc/rpclog"
	"guide-rpc/transport"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/gorpc"
)

// GorpcServer is the server transport for transport.GorpcClient.
type GorpcServer struct {
	handler middleware.HandlerFunc
	log     *logrus.Entry

	srv *gorpc.Server
	wg  sync.WaitGroup
}

// NewGorpcServer creates a gorpc server transport dispatching to handler.
func NewGorpcServer(handler middleware.HandlerFunc, logger *logrus.Entry) *GorpcServer {
	return &GorpcServer{handler: handler, log: rpclog.Or(logger, "server")}
}

func (s *GorpcServer) Start(address string) error {
	s.srv = &gorpc.Server{
		Addr:    address,
		Handler: s.serve,
	}
	if err := s.srv.Start(); err != nil {
		return errors.Wrapf(err, "start gorpc server on %s", address)
	}
	s.log.WithField("address", address).Info("gorpc server listening")
	return nil
}

func (s *GorpcServer) serve(clientAddr string, request any) any {
	s.wg.Add(1)
	defer s.wg.Done()

	msg, ok := request.(transport.GorpcRequest)
	if !ok {
		s.log.WithField("remote", clientAddr).Warnf("unexpected gorpc request %T", request)
		return &transport.GorpcResponse{}
	}
	cdc, err := codec.GetCodec(codec.CodecType(msg.CodecType))
	if err != nil {
		s.log.WithError(err).WithField("remote", clientAddr).Warn("rejected gorpc request")
		return &transport.GorpcResponse{}
	}
	req := new(message.RpcRequest)
	if err := cdc.Decode(msg.Body, req); err != nil {
		s.log.WithError(err).WithField("remote", clientAddr).Warn("undecodable gorpc request")
		return &transport.GorpcResponse{}
	}

	body, err := cdc.Encode(s.handler(context.Background(), req))
	if err != nil {
		s.log.WithError(err).WithField("request", req.RequestID).Warn("encoding response failed")
		return &transport.GorpcResponse{}
	}
	return &transport.GorpcResponse{Body: body}
}

// Stop stops the gorpc server, then waits for handlers still running.
func (s *GorpcServer) Stop(timeout time.Duration) error {
	if s.srv != nil {
		s.srv.Stop()
	}
	return waitTimeout(&s.wg, timeout)
}
