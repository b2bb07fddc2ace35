package event

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
)

// DefaultGroupID is the consumer group shared by every sync consumer.
const DefaultGroupID = "search-sync"

// ConsumerConfig configures the Kafka consumers of the sync handlers.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	MaxAttempts int
	// Store deduplicates redelivered envelopes. Optional.
	Store pkgkafka.IdempotencyStore
	// DLQ receives envelopes whose handler kept failing. Optional.
	DLQ pkgkafka.DeadLetterPublisher
}

// Consumers is one Kafka consumer per routed event kind.
type Consumers struct {
	consumers []*pkgkafka.Consumer
	logger    *slog.Logger
}

// NewConsumers creates a consumer for every kind registered on router.
func NewConsumers(cfg ConsumerConfig, router *Router, logger *slog.Logger) *Consumers {
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultGroupID
	}

	handler := pkgkafka.Handler(router.Handle)
	if cfg.Store != nil {
		handler = pkgkafka.IdempotentHandler(cfg.Store, handler, logger)
	}

	kinds := router.Kinds()
	cs := &Consumers{
		consumers: make([]*pkgkafka.Consumer, 0, len(kinds)),
		logger:    logger,
	}
	for _, kind := range kinds {
		cs.consumers = append(cs.consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       Topic(kind),
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxAttempts: cfg.MaxAttempts,
			DLQ:         cfg.DLQ,
		}, handler, logger))
	}
	return cs
}

// Topics returns the consumed topics.
func (cs *Consumers) Topics() []string {
	topics := make([]string, len(cs.consumers))
	for i, c := range cs.consumers {
		topics[i] = c.Topic()
	}
	return topics
}

// Run starts every consumer and blocks until ctx is canceled or one of them
// fails.
func (cs *Consumers) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range cs.consumers {
		g.Go(func() error {
			return c.Start(gctx)
		})
	}
	cs.logger.InfoContext(ctx, "event consumers started", slog.Int("topics", len(cs.consumers)))
	return g.Wait()
}

// Close closes every consumer.
func (cs *Consumers) Close() error {
	var errs []error
	for _, c := range cs.consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
