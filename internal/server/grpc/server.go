// Package grpc exposes the relay engine as the chatrelay.v1.RelayService
// gRPC service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/relay"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address string
	engine  *relay.Engine
	logger  logging.Logger
}

func NewGRPCServer(address string, engine *relay.Engine, l logging.Logger) *GRPCServer {
	return &GRPCServer{
		address: address,
		engine:  engine,
		logger:  l.With("module", "grpc_server"),
	}
}

// NewServer returns a grpc.Server with the relay service and the session
// interceptor registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.sessionTokenInterceptor))
	srv := grpc.NewServer(opts...)
	RegisterRelayServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.NewServer()

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			srv.GracefulStop()
		case <-stopped:
		}
	}()
	defer close(stopped)

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
