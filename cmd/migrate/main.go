// migrate applies the embedded schema migrations: go run ./cmd/migrate [-direction up|down] [-version].
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/circuitpointe-dev/centora-sub011/internal/config"
	"github.com/circuitpointe-dev/centora-sub011/internal/db/migrate"
	"github.com/circuitpointe-dev/centora-sub011/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	showVersion := flag.Bool("version", false, "Print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if cfg.DatabaseURL == "" {
		logger.Fatal(migrate.ErrMissingDSN)
	}

	if *showVersion {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("read schema version")
		}
		logger.WithFields(logrus.Fields{"version": v, "dirty": dirty}).Info("schema version")
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		logger.WithError(err).WithField("direction", *direction).Fatal("migrate failed")
	}
	v, _, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Warn("read schema version")
		return
	}
	logger.WithFields(logrus.Fields{"direction": *direction, "version": v}).Info("migrations applied")
}
