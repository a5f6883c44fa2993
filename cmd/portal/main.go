package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"portal/config"
	"portal/internal/app"
	"portal/internal/lib/logger"
	"portal/internal/lib/logger/sl"
)

const (
	_shutdownPeriod      = 15 * time.Second
	_readinessDrainDelay = 5 * time.Second
)

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	log.Info("portal", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage.Driver))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storageApp, err := app.NewStorageApp(rootCtx, cfg.Storage)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := storageApp.Stop(); err != nil {
			log.Error("closing storage app", sl.Err(err))
		}
	}()

	application, err := app.New(log, cfg, storageApp)
	if err != nil {
		panic(err)
	}

	go func() {
		log.Info("Server starting on protocol", slog.Int("port", cfg.GRPC.Port))
		application.GRPCServer.MustRun()
	}()

	go func() {
		if err := application.MetricsApp.Run(); err != nil {
			log.Error("metrics server failed", sl.Err(err))
		}
	}()

	go application.Sweeper.Run(rootCtx)

	// Waiting for SIGINT (pkill -2) or SIGTERM
	<-rootCtx.Done()
	stop()

	log.Info("Received shutdown signal, shutting down gracefully")

	application.GRPCServer.Drain()

	// Give time for readiness check to propagate
	time.Sleep(_readinessDrainDelay)
	log.Info("Readiness check propagated, now waiting for ongoing requests to finish.")

	application.GRPCServer.Stop(_shutdownPeriod)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), _shutdownPeriod)
	defer cancel()
	if err := application.MetricsApp.Stop(shutdownCtx); err != nil {
		log.Error("stopping metrics server", sl.Err(err))
	}

	log.Info("Server shut down gracefully.")
}
