package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the service name reported by the health service besides
// the empty overall name
const ServiceName = "catalogd.registry"

// ReadyChecker reports whether the registry can serve requests
type ReadyChecker interface {
	Ready() bool
}

// HealthService implements the standard gRPC health protocol on top of
// storage readiness
type HealthService struct {
	healthpb.UnimplementedHealthServer
	ready ReadyChecker
}

// NewHealthService creates a new health service
func NewHealthService(ready ReadyChecker) *HealthService {
	return &HealthService{ready: ready}
}

// Check reports SERVING once storage is ready
func (s *HealthService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}

	if s.ready == nil || !s.ready.Ready() {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
