package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the service name reported alongside the overall ("") status.
const ServiceName = "relay-gate"

const checkTimeout = 2 * time.Second

// Pinger checks connectivity to a backing store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Server implements grpc.health.v1.Health for readiness and liveness probes.
type Server struct {
	healthpb.UnimplementedHealthServer

	store Pinger
	cache Pinger
	log   zerolog.Logger
}

// NewServer returns a health server. SERVING requires the durable store (and the cache, when given)
// to answer. Nil pingers are skipped.
func NewServer(store, cache Pinger, log zerolog.Logger) *Server {
	return &Server{store: store, cache: cache, log: log}
}

// Check reports SERVING when every configured dependency answers. Dependency failures are reported
// as NOT_SERVING, never as a gRPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	for name, p := range map[string]Pinger{"store": s.store, "cache": s.cache} {
		if p == nil {
			continue
		}
		if err := p.PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
