// Package grpc exposes the allocdesk gRPC health service.
package grpc

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// RemoteService is the health service name that tracks the remote allocation service.
const RemoteService = "allocdesk.remote"

// Server serves gRPC health checks. The overall service ("") is SERVING while
// the process runs; RemoteService follows remote availability.
type Server struct {
	health *health.Server
	logger *zap.Logger

	grpcServer *grpc.Server
}

// NewServer creates a new gRPC server.
func NewServer(logger *zap.Logger) *Server {
	s := &Server{
		health: health.NewServer(),
		logger: logger.Named("grpc"),
	}

	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(RemoteService, healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// SetRemoteAvailable updates the remote service health status.
func (s *Server) SetRemoteAvailable(available bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if available {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(RemoteService, st)
}

// Start listens on address and serves until Stop.
func (s *Server) Start(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	s.logger.Info("gRPC server starting", zap.String("address", address))
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop marks every service NOT_SERVING and gracefully stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("gRPC request",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, err
}
