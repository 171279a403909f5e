package handler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ReadinessChecker returns nil when the service can take traffic.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// Reporter drives the standard grpc.health.v1 server from a ReadinessChecker.
// The overall status ("") and each named service move together.
type Reporter struct {
	checker  ReadinessChecker
	server   *health.Server
	services []string
	interval time.Duration
	log      logrus.FieldLogger
}

// NewReporter returns a Reporter for srv. services are the named services registered on the gRPC server.
func NewReporter(checker ReadinessChecker, srv *health.Server, interval time.Duration, log logrus.FieldLogger, services ...string) *Reporter {
	return &Reporter{checker: checker, server: srv, services: services, interval: interval, log: log}
}

// Refresh runs one check and publishes the result.
func (r *Reporter) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := r.checker.Check(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		r.log.WithError(err).Warn("readiness check failed")
	}
	r.server.SetServingStatus("", st)
	for _, s := range r.services {
		r.server.SetServingStatus(s, st)
	}
	return st
}

// Run refreshes immediately and then every interval until ctx is done, then marks everything NOT_SERVING.
func (r *Reporter) Run(ctx context.Context) {
	r.Refresh(ctx)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-t.C:
			r.Refresh(ctx)
		}
	}
}
