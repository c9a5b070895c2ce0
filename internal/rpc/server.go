package rpc

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/cartridge/rrc-policy/internal/metrics"
	"github.com/cartridge/rrc-policy/internal/policy"
)

// Server is a gRPC server carrying the policy service, the standard health
// service and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewServer builds a server for p. p must be safe for concurrent use.
func NewServer(p policy.Policy, collector *metrics.Collector, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "grpc").Logger()

	server := grpc.NewServer(
		grpc.UnaryInterceptor(loggingInterceptor(logger)),
	)
	RegisterPolicyServer(server, NewPolicyService(p, collector, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	// Enable reflection for development
	reflection.Register(server)

	return &Server{grpc: server, health: healthServer, logger: logger}
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("Policy gRPC service listening")
	return s.grpc.Serve(lis)
}

// Shutdown marks the service NOT_SERVING and stops gracefully, forcing a
// stop when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		s.grpc.Stop()
	case <-stopped:
		s.logger.Info().Msg("gRPC server stopped gracefully")
	}
}

// loggingInterceptor logs gRPC requests
func loggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")

		return resp, err
	}
}
