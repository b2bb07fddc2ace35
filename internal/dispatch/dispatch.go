// Package dispatch splits ID lists into bounded change events and emits
// them on the event bus.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/searchsync/internal/domain"
)

// DefaultChunkSize is the number of IDs carried by one event.
const DefaultChunkSize = 100

var eventsEmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_sync_events_emitted_total",
		Help: "Change events emitted by the dispatcher, by kind",
	},
	[]string{"kind"},
)

// EventBus delivers change events to the sync handlers.
type EventBus interface {
	Emit(ctx context.Context, event domain.ChangeEvent) error
}

// Chunk splits ids into consecutive slices of at most size elements. Order
// is preserved and only the last chunk may be short. Each chunk has its
// capacity capped so appending to it never writes into the next one.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end:end])
	}
	return chunks
}

// Dispatcher emits chunked change events.
type Dispatcher struct {
	bus         EventBus
	chunkSize   int
	concurrency int
	logger      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChunkSize sets the IDs per event.
func WithChunkSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithConcurrency sets how many events may be in flight at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New creates a dispatcher. By default it emits sequentially in chunks of
// DefaultChunkSize.
func New(bus EventBus, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bus:         bus,
		chunkSize:   DefaultChunkSize,
		concurrency: 1,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ChunkSize returns the configured chunk size.
func (d *Dispatcher) ChunkSize() int { return d.chunkSize }

// Dispatch emits one event of kind per chunk of ids and returns how many
// were emitted. It stops at the first bus error and returns it.
func (d *Dispatcher) Dispatch(ctx context.Context, kind domain.EventKind, t domain.IndexType, ids []string) (int, error) {
	if !kind.IsValid() {
		return 0, fmt.Errorf("dispatch: %w: %q", domain.ErrUnknownEventKind, kind)
	}

	chunks := Chunk(ids, d.chunkSize)
	if len(chunks) == 0 {
		return 0, nil
	}

	var emitted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			event := domain.ChangeEvent{Kind: kind, IndexType: t, IDs: chunk}
			if err := d.bus.Emit(gctx, event); err != nil {
				return fmt.Errorf("emit %s chunk %d/%d: %w", kind, i+1, len(chunks), err)
			}
			emitted.Add(1)
			eventsEmitted.WithLabelValues(string(kind)).Inc()
			return nil
		})
	}

	err := g.Wait()
	n := int(emitted.Load())
	d.logger.DebugContext(ctx, "change events dispatched",
		slog.String("kind", string(kind)),
		slog.Int("ids", len(ids)),
		slog.Int("events", n),
		slog.Int("chunks", len(chunks)),
	)
	return n, err
}
