package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"frameworks/lookout/internal/config"
	"frameworks/lookout/internal/metrics"
	pkgconfig "frameworks/lookout/pkg/config"
	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/monitoring"
	"frameworks/lookout/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("lookout")
	pkgconfig.LoadEnv(logger)

	logger.WithField("version", version.String()).Info("Starting Lookout (alarm console)")

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecker := monitoring.NewHealthChecker("lookout", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("lookout", version.Version, version.GitCommit)
	serviceMetrics := metrics.New(metricsCollector)

	a, err := newApp(ctx, cfg, logger, serviceMetrics, healthChecker, metricsCollector)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise lookout")
	}

	if err := a.run(ctx); err != nil {
		logger.WithError(err).Fatal("Lookout stopped with error")
	}
	logger.Info("Lookout stopped")
}
