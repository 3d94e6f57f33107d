// Command sweep runs a single expiry sweep and exits. It is meant for
// external schedulers (Kubernetes CronJob, EventBridge) when the API's
// in-process schedule is disabled.
//
// Exit status: 0 on a clean sweep, 1 when the sweep could not run, 2 when
// some expired files could not be removed.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"geofyle/internal/bootstrap"
	"geofyle/internal/config"
	"geofyle/internal/logging"
	"geofyle/internal/service"
)

const (
	exitOK = iota
	exitError
	exitPartial
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, time.UTC)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	code := run(cfg, logger)
	_ = logger.Sync()
	os.Exit(code)
}

// run performs one sweep and returns the process exit status. Every resource
// it opens is released before it returns.
func run(cfg *config.AppConfig, logger *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", zap.Error(err))
		return exitError
	}
	defer stores.Close()

	blobs, err := bootstrap.OpenBlobStore(ctx, cfg)
	if err != nil {
		logger.Error("open blob store", zap.Error(err))
		return exitError
	}

	sweeper := service.NewSweeper(stores.Files, blobs, cfg.Sweep, service.WithLogger(logger))
	report, err := sweeper.RunOnce(ctx)
	if err != nil {
		logger.Error("sweep failed", zap.Error(err))
	}
	return exitCode(report, err)
}

func exitCode(report *service.SweepReport, err error) int {
	switch {
	case err != nil:
		return exitError
	case report != nil && report.Failed() > 0:
		return exitPartial
	default:
		return exitOK
	}
}
