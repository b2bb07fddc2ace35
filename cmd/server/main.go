package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/searchsync/internal/app"
	"github.com/utafrali/searchsync/internal/config"
	"github.com/utafrali/searchsync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(app.ServiceName, cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("search sync service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("search sync service stopped")
}

// run serves until SIGINT or SIGTERM. SEARCH_ENGINE picks Elasticsearch or
// the in-memory index; EVENT_BUS picks Kafka topics with one consumer per
// event kind, or in-process delivery.
func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting search sync service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("search_engine", cfg.SearchEngine),
		slog.String("event_bus", cfg.EventBus),
		slog.Duration("full_sync_interval", cfg.FullSyncInterval),
	)

	// Index settings are applied during NewApp, so it needs the signal
	// context too.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}
