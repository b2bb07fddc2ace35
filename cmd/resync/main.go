// Command resync runs one full sync against the configured index and
// event bus, then exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/searchsync/internal/app"
	"github.com/utafrali/searchsync/internal/config"
	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/service"
	"github.com/utafrali/searchsync/pkg/logger"
)

func main() {
	indexFlag := flag.String("index", "all", "index to resync: products, reviews or all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New(app.ServiceName+"-resync", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *indexFlag, log); err != nil {
		log.Error("resync failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, target string, log *slog.Logger) (err error) {
	var types []domain.IndexType
	if target == "all" {
		types = domain.AllIndexTypes()
	} else {
		t, err := domain.ParseIndexType(target)
		if err != nil {
			return fmt.Errorf("-index: %w", err)
		}
		types = []domain.IndexType{t}
	}

	application, err := app.NewApp(ctx, cfg, log, app.WithoutConsumers())
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if cerr := application.Shutdown(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.FullSyncTimeout)
	defer cancel()

	for _, t := range types {
		var report *service.FullSyncReport
		report, err = application.Service().RunFullSync(ctx, t)
		if err != nil {
			return err
		}
		log.Info("resync dispatched",
			slog.String("index_type", string(report.IndexType)),
			slog.Int("deleted", report.Deleted),
			slog.Int("eligible", report.Eligible),
			slog.Int("events", report.EventsEmitted),
			slog.Duration("duration", report.Duration),
		)
	}

	// With the in-process bus the documents are written here.
	application.Drain()
	return nil
}
