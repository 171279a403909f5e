package server

import (
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/circuitpointe-dev/centora-sub011/internal/server/interceptors"
)

// HealthServiceName is the named service reported alongside the overall status.
const HealthServiceName = "centora.provisioning.v1.Provisioning"

// NewGRPCServer returns a gRPC server exposing grpc.health.v1.Health backed by hs, instrumented with otelgrpc.
// Reflection is registered outside production.
func NewGRPCServer(hs *health.Server, log logrus.FieldLogger, production bool) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(log, map[string]bool{
				healthpb.Health_Check_FullMethodName: true,
			}),
		),
	)
	healthpb.RegisterHealthServer(s, hs)
	if !production {
		reflection.Register(s)
	}
	return s
}
