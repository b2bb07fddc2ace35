package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/searchsync/internal/collector"
	"github.com/utafrali/searchsync/internal/config"
	"github.com/utafrali/searchsync/internal/dispatch"
	"github.com/utafrali/searchsync/internal/event"
	handler "github.com/utafrali/searchsync/internal/handler/http"
	"github.com/utafrali/searchsync/internal/index"
	esindex "github.com/utafrali/searchsync/internal/index/elasticsearch"
	"github.com/utafrali/searchsync/internal/index/memory"
	"github.com/utafrali/searchsync/internal/index/resilient"
	"github.com/utafrali/searchsync/internal/repository"
	"github.com/utafrali/searchsync/internal/repository/postgres"
	"github.com/utafrali/searchsync/internal/service"
	"github.com/utafrali/searchsync/pkg/database"
	"github.com/utafrali/searchsync/pkg/health"
	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
	"github.com/utafrali/searchsync/pkg/tracing"
)

// ServiceName tags logs, traces and metrics of this service.
const ServiceName = "search-sync"

// Option customises NewApp.
type Option func(*options)

type options struct {
	store       repository.Store
	noConsumers bool
	skipTracing bool
}

// WithStore replaces the PostgreSQL system of record.
func WithStore(s repository.Store) Option {
	return func(o *options) { o.store = s }
}

// WithoutConsumers builds the app without Kafka consumers, for one-shot
// commands that only emit events.
func WithoutConsumers() Option {
	return func(o *options) { o.noConsumers = true }
}

// WithoutTracing skips OpenTelemetry setup.
func WithoutTracing() Option {
	return func(o *options) { o.skipTracing = true }
}

// App wires together all dependencies and runs the search sync service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	service    *service.SyncService
	admin      *handler.AdminHandler
	httpServer *http.Server
	consumers  *event.Consumers
	localBus   *event.LocalBus
	closers    []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.closeAll(context.Background())
		}
	}()

	healthHandler := health.NewHandler()

	if !o.skipTracing {
		shutdown, err := tracing.InitTracer(ctx, cfg.Tracing(ServiceName))
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.onClose("tracing", shutdown)
	}

	// Remote index.
	idx, err := a.newIndex(cfg)
	if err != nil {
		return nil, err
	}
	healthHandler.Register(cfg.SearchEngine, idx.Ping)

	// System of record.
	store := o.store
	if store == nil {
		pgCfg := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.onClose("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		healthHandler.Register("postgres", pool.Ping)
		store = postgres.NewStore(pool)
	}

	// Event bus. The router is filled once the service exists.
	router := event.NewRouter(logger)
	var bus dispatch.EventBus
	switch cfg.EventBus {
	case config.BusMemory:
		a.localBus = event.NewLocalBus(router, cfg.LocalBusWorkers, logger)
		a.onClose("local bus", func(context.Context) error { return a.localBus.Close() })
		bus = a.localBus
		logger.Info("in-process event bus initialized")
	default:
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.onClose("kafka producer", func(context.Context) error { return producer.Close() })
		healthHandler.Register("kafka", producer.Ping)
		bus = event.NewKafkaBus(producer, logger)
	}

	dispatcher := dispatch.New(bus, logger,
		dispatch.WithChunkSize(cfg.ChunkSize),
		dispatch.WithConcurrency(cfg.DispatchConcurrency),
	)

	a.service = service.NewSyncService(service.Deps{
		Index:      idx,
		Collector:  collector.New(store, logger),
		Records:    store,
		Relations:  store,
		Dispatcher: dispatcher,
	}, service.Options{
		DeleteChunkSize: cfg.DeleteChunkSize,
		IndexPrefix:     cfg.IndexPrefix,
		AppID:           cfg.AppID,
	}, logger)
	event.RegisterSync(router, a.service)

	if cfg.EventBus == config.BusKafka && !o.noConsumers {
		consumers, err := a.newConsumers(ctx, cfg, router, healthHandler)
		if err != nil {
			return nil, err
		}
		a.consumers = consumers
	}

	// HTTP router.
	a.admin = handler.NewAdminHandler(a.service, cfg.FullSyncTimeout, logger)
	httpRouter := handler.NewRouter(handler.RouterConfig{
		Admin:          a.admin,
		Search:         handler.NewSearchHandler(a.service, logger),
		Health:         healthHandler,
		AdminToken:     cfg.AdminAPIToken,
		AdminJWTSecret: cfg.AdminJWTSecret,
		Logger:         logger,
	})
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.EnsureSettings {
		if err := a.service.EnsureSettings(ctx); err != nil {
			return nil, fmt.Errorf("ensure index settings: %w", err)
		}
	}

	return a, nil
}

func (a *App) newIndex(cfg *config.Config) (index.Client, error) {
	var idx index.Client
	switch cfg.SearchEngine {
	case config.EngineMemory:
		idx = memory.New()
		a.logger.Info("in-memory search index initialized")
	default:
		es, err := esindex.New(esindex.Config{
			Addresses:   cfg.ElasticsearchURL,
			Username:    cfg.ElasticsearchUsername,
			Password:    cfg.ElasticsearchPassword,
			APIKey:      cfg.ElasticsearchAPIKey,
			IndexPrefix: cfg.IndexPrefix,
			Refresh:     cfg.ElasticsearchRefresh,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch index: %w", err)
		}
		idx = es
		a.logger.Info("elasticsearch search index initialized",
			slog.Any("addresses", cfg.ElasticsearchURL),
			slog.String("prefix", cfg.IndexPrefix),
		)
	}

	if !cfg.IndexPolicyEnabled {
		return idx, nil
	}
	policy := resilient.DefaultConfig()
	policy.CallTimeout = cfg.IndexCallTimeout
	policy.MaxRetries = cfg.IndexMaxRetries
	policy.WriteRate = cfg.IndexRateLimit
	a.logger.Info("index call policy enabled",
		slog.Duration("call_timeout", policy.CallTimeout),
		slog.Uint64("max_retries", uint64(policy.MaxRetries)),
		slog.Float64("write_rate", policy.WriteRate),
	)
	return resilient.New(idx, policy, a.logger), nil
}

func (a *App) newConsumers(ctx context.Context, cfg *config.Config, router *event.Router, hh *health.Handler) (*event.Consumers, error) {
	var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	if rc, ok := cfg.Redis(); ok {
		client, err := database.NewRedisClient(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.onClose("redis", func(context.Context) error { return client.Close() })
		hh.Register("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
		store = pkgkafka.NewRedisIdempotencyStore(client, ServiceName+":events:", cfg.IdempotencyTTL)
	}

	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, cfg.DLQPrefix, a.logger)
	a.onClose("dlq producer", func(context.Context) error { return dlq.Close() })

	consumers := event.NewConsumers(event.ConsumerConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		MaxAttempts: cfg.KafkaMaxAttempts,
		Store:       store,
		DLQ:         dlq,
	}, router, a.logger)
	a.onClose("kafka consumers", func(context.Context) error { return consumers.Close() })

	a.logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(consumers.Topics())),
	)
	return consumers, nil
}

// Service returns the sync service.
func (a *App) Service() *service.SyncService { return a.service }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.httpServer.Handler }

// Drain waits until background syncs and in-process event deliveries have
// finished. It returns immediately on the Kafka bus, whose events are
// handled by the consumers.
func (a *App) Drain() {
	a.admin.Wait()
	if a.localBus != nil {
		a.localBus.Wait()
	}
}

// Run starts the HTTP server, the Kafka consumers and the optional full
// sync schedule, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.consumers != nil {
		go func() {
			if err := a.consumers.Run(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumers: %w", err)
			}
		}()
	}

	if a.cfg.FullSyncInterval > 0 {
		go a.schedule(ctx, a.cfg.FullSyncInterval)
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// schedule runs a full sync of every index each interval.
func (a *App) schedule(ctx context.Context, interval time.Duration) {
	a.logger.Info("full sync schedule enabled", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sctx, cancel := context.WithTimeout(ctx, a.cfg.FullSyncTimeout)
			if _, err := a.service.RunFullSyncAll(sctx); err != nil {
				a.logger.ErrorContext(sctx, "scheduled full sync failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.admin != nil {
		a.admin.Close()
	}
	if err := a.closeAll(ctx); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// closeAll releases resources in reverse order of acquisition.
func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Error("close error", slog.String("component", c.name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
