package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"trendharvest/internal/adapters/gormstore"
	"trendharvest/internal/adapters/ytdlp"
	"trendharvest/internal/adapters/ytsearch"
	"trendharvest/internal/api"
	"trendharvest/internal/config"
	"trendharvest/internal/service"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := config.SetupLogger(cfg)

	logger.Info("starting trendharvest",
		slog.String("version", config.Version),
		slog.String("data_dir", cfg.DataDir),
		slog.String("db_path", cfg.DBPath))

	store, err := gormstore.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	executor := ytdlp.New(cfg.YtDlpBin, cfg.DownloadTimeout)
	source := ytsearch.New(cfg.YtDlpBin, cfg.DownloadTimeout)

	queue := service.NewQueue(store.Settings(), store.Videos(), store.JobLog(), executor, cfg.DataDir, logger)
	gateway := service.NewGateway(store.Settings(), store.Channels(), store.Videos(), queue, logger)
	discover := service.NewDiscoverService(store.Settings(), source, gateway, store.JobLog(), logger)
	scan := service.NewChannelScanService(store.Settings(), store.Channels(), source, gateway, store.JobLog(), logger)
	scheduler := service.NewScheduler(store.Settings(), queue, discover, scan, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ReconcileOnStart {
		n, err := queue.Reconcile(ctx)
		if err != nil {
			logger.Error("reconcile failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("reconciled pending downloads", slog.Int("count", n))
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handler := api.NewHandler(store.Settings(), store.Channels(), store.Videos(), store.JobLog(), queue, scheduler, discover, scan, logger)
	server := api.NewServer(cfg.Port, handler, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	scheduler.Stop()
	if err := queue.Stop(shutdownCtx); err != nil {
		logger.Error("queue drain timed out", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
}
