package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/utafrali/searchsync/internal/dispatch"
	"github.com/utafrali/searchsync/internal/domain"
	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
)

// ErrBusClosed is returned by Emit after Close.
var ErrBusClosed = errors.New("event bus closed")

// Publisher sends an envelope to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// KafkaBus publishes change events to Kafka, one topic per event kind.
type KafkaBus struct {
	publisher Publisher
	logger    *slog.Logger
}

var _ dispatch.EventBus = (*KafkaBus)(nil)

// NewKafkaBus creates a bus on top of publisher.
func NewKafkaBus(publisher Publisher, logger *slog.Logger) *KafkaBus {
	return &KafkaBus{publisher: publisher, logger: logger}
}

// Topic is the Kafka topic carrying events of kind.
func Topic(kind domain.EventKind) string {
	return string(kind)
}

// Emit publishes e.
func (b *KafkaBus) Emit(ctx context.Context, e domain.ChangeEvent) error {
	env, err := Encode(ctx, e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Kind, err)
	}
	return b.publisher.Publish(ctx, Topic(e.Kind), env)
}

// DefaultLocalConcurrency bounds in-flight deliveries of a LocalBus.
const DefaultLocalConcurrency = 4

// LocalBus delivers change events to a router in-process. Delivery is
// asynchronous: Emit returns once the event is queued and handler failures
// are only logged.
type LocalBus struct {
	router *Router
	logger *slog.Logger
	sem    chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ dispatch.EventBus = (*LocalBus)(nil)

// NewLocalBus creates an in-process bus running at most concurrency
// handlers at once.
func NewLocalBus(router *Router, concurrency int, logger *slog.Logger) *LocalBus {
	if concurrency <= 0 {
		concurrency = DefaultLocalConcurrency
	}
	return &LocalBus{
		router: router,
		logger: logger,
		sem:    make(chan struct{}, concurrency),
	}
}

// Emit queues e for delivery. The handler runs detached from ctx's
// cancellation but keeps its values.
func (b *LocalBus) Emit(ctx context.Context, e domain.ChangeEvent) error {
	env, err := Encode(ctx, e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Kind, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.wg.Add(1)

	hctx := context.WithoutCancel(ctx)
	go func() {
		defer b.wg.Done()
		b.sem <- struct{}{}
		defer func() { <-b.sem }()

		if err := b.router.Handle(hctx, env); err != nil {
			b.logger.ErrorContext(hctx, "local event handling failed",
				slog.String("event_type", env.EventType),
				slog.String("event_id", env.EventID),
				slog.Int("ids", len(e.IDs)),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Wait blocks until every queued event has been handled, including events
// emitted by handlers while waiting.
func (b *LocalBus) Wait() {
	b.wg.Wait()
}

// Close stops accepting events and waits for in-flight ones.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
