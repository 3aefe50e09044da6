// Package server implements the provider side: server transports and the publish/shutdown flow.
//
// Request processing pipeline of the socket Server:
//
//	Accept conn → go handleConn
//	  → read exactly one frame → Codec.Decode → Middleware Chain → provider.Handler → Codec.Encode
//	  → write one response frame → close conn
//
// A frame that cannot be decoded drops the connection without a response. Any failure after
// decoding, including an unknown service or a failed dispatch, is answered with a failure response.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"guide-rpc/codec"
	"guide-rpc/middleware"
	"guide-rpc/protocol"
	"guide-rpc/rpclog"
	"guide-rpc/transport"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ServerTransport accepts requests and hands them to a handler.
type ServerTransport interface {
	// Start binds address and serves in the background.
	Start(address string) error
	// Stop stops accepting and waits up to timeout for in-flight requests.
	Stop(timeout time.Duration) error
}

// Server is the framed TCP server transport.
type Server struct {
	handler  middleware.HandlerFunc
	listener net.Listener
	wg       sync.WaitGroup // in-flight connections
	shutdown atomic.Bool    // set before the listener is closed
	log      *logrus.Entry

	// ReadTimeout bounds the wait for the request frame. Zero means no bound.
	ReadTimeout time.Duration
}

// NewServer creates a server dispatching every request to handler.
func NewServer(handler middleware.HandlerFunc, logger *logrus.Entry) *Server {
	return &Server{handler: handler, log: rpclog.Or(logger, "server")}
}

// Listen binds the listener without serving.
func (s *Server) Listen(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", address)
	}
	s.listener = listener
	s.log.WithField("address", listener.Addr().String()).Info("server listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens on the TCP address and serves in a background goroutine.
func (s *Server) Start(address string) error {
	if err := s.Listen("tcp", address); err != nil {
		return err
	}
	go func() {
		if err := s.serve(); err != nil {
			s.log.WithError(err).Error("accept loop stopped")
		}
	}()
	return nil
}

// Serve listens and runs the accept loop until Stop. It returns nil after Stop.
func (s *Server) Serve(network, address string) error {
	if err := s.Listen(network, address); err != nil {
		return err
	}
	return s.serve()
}

func (s *Server) serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Accept fails on purpose once Stop closed the listener
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn serves the single request carried by conn.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	log := s.log.WithField("remote", conn.RemoteAddr().String())

	if s.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}
	header, req, err := transport.ReadRequest(conn)
	if err != nil {
		log.WithError(err).Warn("dropping connection with unreadable request")
		return
	}

	resp := s.handler(context.Background(), req)

	err = transport.WriteFrame(conn, codec.CodecType(header.CodecType), protocol.MsgTypeResponse, header.Seq, resp)
	if err != nil {
		log.WithError(err).WithField("request", req.RequestID).Warn("writing response failed")
	}
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop(timeout time.Duration) error {
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	return waitTimeout(&s.wg, timeout)
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout waiting for ongoing requests to finish")
	}
}
