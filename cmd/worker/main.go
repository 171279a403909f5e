// Worker expires stale pending invitations on EXPIRY_SWEEP_SCHEDULE.
// Pass -once to run a single sweep and exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/circuitpointe-dev/centora-sub011/internal/config"
	"github.com/circuitpointe-dev/centora-sub011/internal/db"
	invitationrepo "github.com/circuitpointe-dev/centora-sub011/internal/invitation/repository"
	"github.com/circuitpointe-dev/centora-sub011/internal/invitation/sweeper"
	"github.com/circuitpointe-dev/centora-sub011/internal/logging"
	"github.com/circuitpointe-dev/centora-sub011/internal/telemetry/metrics"
)

func main() {
	once := flag.Bool("once", false, "Run one expiry sweep and exit")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (disabled when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log := logger.WithField("component", "invitation-sweeper")

	handle, err := db.OpenPrivileged(cfg.ServiceDSN())
	if err != nil {
		log.WithError(err).Fatal("db")
	}
	defer handle.Close()

	m := metrics.New(prometheus.NewRegistry())
	s := sweeper.New(invitationrepo.NewPostgresRepository(handle), m, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		if _, err := s.Sweep(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	c := cron.New(cron.WithLogger(cronLogger{log}))
	if _, err := s.Schedule(ctx, c, cfg.ExpirySweepSchedule); err != nil {
		log.WithError(err).WithField("schedule", cfg.ExpirySweepSchedule).Fatal("invalid EXPIRY_SWEEP_SCHEDULE")
	}
	c.Start()
	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server")
			}
		}()
		defer srv.Close()
	}
	log.WithField("schedule", cfg.ExpirySweepSchedule).Info("worker started")

	<-ctx.Done()
	log.Info("worker: shutting down...")
	<-c.Stop().Done()
	log.Info("worker: stopped")
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
