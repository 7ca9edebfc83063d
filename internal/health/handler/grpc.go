package handler

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer implements grpc.health.v1.Health on top of a Checker, for probes that speak gRPC.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer
	checker *Checker
}

// NewGRPCServer returns a health server backed by checker.
func NewGRPCServer(checker *Checker) *GRPCServer {
	return &GRPCServer{checker: checker}
}

// Check reports SERVING when the checker is ready. The service name is ignored.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if s.checker != nil {
		if err := s.checker.Ready(ctx); err != nil {
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
