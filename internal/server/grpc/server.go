// Package grpc exposes the user and library services over the
// comicsync.v1.Library gRPC service.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/comicsync/internal/api"
	"github.com/dmitrijs2005/comicsync/internal/logging"
)

type GRPCServer struct {
	address   string
	users     userService
	library   libraryService
	logger    logging.Logger
	jwtSecret []byte
}

var _ api.LibraryServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, us userService, ls libraryService, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		library:   ls,
		jwtSecret: []byte(secretKey),
	}, nil
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	api.RegisterLibraryServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
