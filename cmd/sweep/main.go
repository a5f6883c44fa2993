// sweep deletes expired portal sessions once and exits. Run it from cron.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal/config"
	"portal/internal/app"
	"portal/internal/lib/logger"
	"portal/internal/lib/logger/sl"
)

const sweepTimeout = time.Minute

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	if err := run(ctx, log, cfg); err != nil {
		log.Error("sweep failed", sl.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, cfg *config.Config) error {
	storageApp, err := app.NewStorageApp(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := storageApp.Stop(); err != nil {
			log.Error("closing storage app", sl.Err(err))
		}
	}()

	sessions := app.NewSessionManager(log, cfg.Tokens, storageApp.Storage())

	n, err := sessions.Sweep(ctx)
	if err != nil {
		return err
	}

	log.Info("sweep finished", slog.Int64("deleted", n))

	return nil
}
