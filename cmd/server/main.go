// server runs the provisioning HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	grpchealth "google.golang.org/grpc/health"

	"github.com/circuitpointe-dev/centora-sub011/internal/audit"
	auditrepo "github.com/circuitpointe-dev/centora-sub011/internal/audit/repository"
	"github.com/circuitpointe-dev/centora-sub011/internal/config"
	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	"github.com/circuitpointe-dev/centora-sub011/internal/events"
	"github.com/circuitpointe-dev/centora-sub011/internal/health"
	healthhandler "github.com/circuitpointe-dev/centora-sub011/internal/health/handler"
	identityrepo "github.com/circuitpointe-dev/centora-sub011/internal/identity/repository"
	invitationrepo "github.com/circuitpointe-dev/centora-sub011/internal/invitation/repository"
	"github.com/circuitpointe-dev/centora-sub011/internal/logging"
	"github.com/circuitpointe-dev/centora-sub011/internal/platform/rbac"
	"github.com/circuitpointe-dev/centora-sub011/internal/platform/retry"
	"github.com/circuitpointe-dev/centora-sub011/internal/policy/engine"
	profilerepo "github.com/circuitpointe-dev/centora-sub011/internal/profile/repository"
	"github.com/circuitpointe-dev/centora-sub011/internal/provisioning/adapter"
	provisioninghandler "github.com/circuitpointe-dev/centora-sub011/internal/provisioning/handler"
	"github.com/circuitpointe-dev/centora-sub011/internal/provisioning/service"
	rolerepo "github.com/circuitpointe-dev/centora-sub011/internal/role/repository"
	"github.com/circuitpointe-dev/centora-sub011/internal/security"
	"github.com/circuitpointe-dev/centora-sub011/internal/server"
	"github.com/circuitpointe-dev/centora-sub011/internal/server/interceptors"
	"github.com/circuitpointe-dev/centora-sub011/internal/server/middleware"
	"github.com/circuitpointe-dev/centora-sub011/internal/telemetry/metrics"
	"github.com/circuitpointe-dev/centora-sub011/internal/telemetry/otel"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	providers, err := otel.Setup(ctx, otel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			logger.WithError(err).Warn("telemetry shutdown")
		}
	}()
	if providers.Exporting {
		if hook := otel.NewLogHook(providers.LoggerProvider, logrus.InfoLevel); hook != nil {
			logger.AddHook(hook)
		}
	}

	if cfg.JWTPublicKey == "" {
		return errors.New("JWT_PUBLIC_KEY is required to verify bearer tokens")
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return fmt.Errorf("jwt public key: %w", err)
	}
	tokens := security.NewTokenProvider(nil, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	handle, err := db.OpenPrivileged(cfg.ServiceDSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer handle.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	principals := identityrepo.NewPostgresRepository(handle, security.NewHasher(cfg.BcryptCost))
	profiles := profilerepo.NewPostgresRepository(handle)
	invitations := invitationrepo.NewPostgresRepository(handle)
	roles := rolerepo.NewPostgresRepository(handle)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(handle), interceptors.ClientIP, logger)

	deletes := retry.DefaultPolicy(cfg.CompensationRetries)
	svc := service.NewProvisioningService(
		adapter.NewIdentity(principals, deletes),
		adapter.NewDirectory(profiles, deletes),
		adapter.NewLedger(invitations, deletes),
		adapter.NewRoles(roles),
		auditLogger,
		m,
		logger.WithField("component", "provisioning"),
		service.Config{
			InvitationTTL:       cfg.InvitationLifetime(),
			StepTimeout:         cfg.StepDeadline(),
			CompensationTimeout: cfg.CompensationDeadline(),
		},
	)
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher := events.NewAsync(events.NewKafkaPublisher(brokers, cfg.KafkaEventsTopic), logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.WithError(err).Warn("events publisher close")
			}
		}()
		svc.WithEvents(publisher)
		logger.WithField("topic", cfg.KafkaEventsTopic).Info("publishing provisioning events")
	}

	authz, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.ProvisioningPolicyFile)
	if err != nil {
		return err
	}
	guard := rbac.NewOrgAdminGuard(profiles, roles, authz)
	checker := health.NewChecker(handle, authz)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.HTTPDeps{
			Log:          logger,
			Tokens:       tokens,
			Readiness:    checker,
			Metrics:      m,
			Limiter:      limiter,
			MaxBodyBytes: cfg.MaxBodyBytes,
			API:          []server.Routes{provisioninghandler.NewHandler(svc, guard, logger)},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hs := grpchealth.NewServer()
	grpcSrv := server.NewGRPCServer(hs, logger, cfg.IsProduction())
	reporter := healthhandler.NewReporter(checker, hs, cfg.HealthCheckInterval(), logger, server.HealthServiceName)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", cfg.GRPCAddr).Info("gRPC health server listening")
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		reporter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(sctx)
		grpcSrv.GracefulStop()
		return err
	})
	return g.Wait()
}
