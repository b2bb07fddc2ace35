package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"github.com/utafrali/searchsync/pkg/logger"
)

// DefaultMaxAttempts is how many times a handler runs before the message is
// dead-lettered (or dropped when no DLQ is configured).
const DefaultMaxAttempts = 3

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// messageReader is the subset of *kafka.Reader used by consumers.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// MaxAttempts bounds handler invocations per message. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int
	// RetryInterval is the first backoff step between attempts. Zero means
	// 100ms.
	RetryInterval time.Duration
	// DLQ receives messages that exhausted their attempts. Optional.
	DLQ DeadLetterPublisher
}

// Consumer reads one topic in a consumer group and feeds envelopes to a
// Handler. Offsets are committed after the handler succeeds, after a poison
// message is dead-lettered, or when the envelope cannot be decoded.
type Consumer struct {
	reader        messageReader
	topic         string
	group         string
	maxAttempts   int
	retryInterval time.Duration
	dlq           DeadLetterPublisher
	logger        *slog.Logger
	handler       Handler
	closeOnce     sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})

	return newConsumer(r, cfg, handler, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 100 * time.Millisecond
	}

	return &Consumer{
		reader:        r,
		topic:         cfg.Topic,
		group:         cfg.GroupID,
		maxAttempts:   cfg.MaxAttempts,
		retryInterval: cfg.RetryInterval,
		dlq:           cfg.DLQ,
		logger:        logger.With(slog.String("topic", cfg.Topic), slog.String("consumer_group", cfg.GroupID)),
		handler:       handler,
	}
}

// Topic returns the topic this consumer reads.
func (c *Consumer) Topic() string { return c.topic }

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return c.Close()
			}
			if errors.Is(err, context.Canceled) {
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		consumerMessagesReceived.WithLabelValues(c.topic, c.group).Inc()
		if err := c.process(ctx, msg); err != nil {
			// Only cancellation aborts processing; the offset stays
			// uncommitted so the message is redelivered.
			c.logger.Info("consumer stopping", slog.String("reason", err.Error()))
			return c.Close()
		}
	}
}

// process handles one message and commits it. A non-nil return means the
// context ended before the message was settled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to decode envelope, skipping",
			slog.String("error", err.Error()),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)
		c.commit(ctx, msg)
		return nil
	}

	hctx := ExtractTraceContext(ctx, msg)
	hctx = logger.WithEventID(hctx, event.EventID)
	if event.CorrelationID != "" {
		hctx = logger.WithCorrelationID(hctx, event.CorrelationID)
	}

	start := time.Now()
	lastErr := c.handleWithRetry(hctx, msg, event)
	consumerProcessingDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		consumerMessagesFailed.WithLabelValues(c.topic, c.group).Inc()
		c.logger.ErrorContext(hctx, "handler failed after all attempts",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", lastErr.Error()),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempts", c.maxAttempts),
		)
		if c.dlq != nil {
			if err := c.dlq.Publish(ctx, msg, lastErr, c.group); err != nil {
				// Leave the offset uncommitted so the message is redelivered
				// rather than lost.
				return nil
			}
		}
		c.commit(ctx, msg)
		return nil
	}

	consumerMessagesProcessed.WithLabelValues(c.topic, c.group).Inc()
	c.commit(ctx, msg)
	return nil
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, event *Event) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 20 * c.retryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.handler(ctx, event)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.WarnContext(ctx, "handler failed, will retry",
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
				slog.String("error", err.Error()),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", next),
			)
		}),
	)
	return err
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	if err != nil {
		return fmt.Errorf("close consumer %s: %w", c.topic, err)
	}
	return nil
}
