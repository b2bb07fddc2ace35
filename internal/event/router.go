// Package event connects the sync handlers to the event bus: routing of
// incoming envelopes by event kind and emission of change events.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/cenkalti/backoff/v5"

	"github.com/utafrali/searchsync/internal/domain"
	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
	"github.com/utafrali/searchsync/pkg/logger"
)

// Source is stamped on every envelope this service publishes.
const Source = "search-sync"

// ErrInvalidPayload is returned for envelopes that can never be handled.
var ErrInvalidPayload = errors.New("invalid change event payload")

// HandlerFunc handles one decoded change event.
type HandlerFunc func(ctx context.Context, event domain.ChangeEvent) error

// SyncHandlers are the service operations the router dispatches to.
type SyncHandlers interface {
	OnChanged(ctx context.Context, t domain.IndexType, ids []string) error
	OnDeleted(ctx context.Context, t domain.IndexType, ids []string) error
	OnIntermediateChanged(ctx context.Context, kind domain.EventKind, ids []string) error
}

// Router dispatches envelopes to the handler registered for their kind.
type Router struct {
	handlers map[domain.EventKind]HandlerFunc
	logger   *slog.Logger
}

// NewRouter creates a router with no handlers.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[domain.EventKind]HandlerFunc),
		logger:   logger,
	}
}

// Register binds h to kind, replacing any earlier registration.
func (r *Router) Register(kind domain.EventKind, h HandlerFunc) {
	r.handlers[kind] = h
}

// Kinds returns the registered kinds, sorted.
func (r *Router) Kinds() []domain.EventKind {
	kinds := make([]domain.EventKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// RegisterSync binds every event kind to the matching sync handler.
func RegisterSync(r *Router, h SyncHandlers) {
	for _, kind := range domain.AllEventKinds() {
		switch {
		case kind.IsIntermediate():
			r.Register(kind, func(ctx context.Context, e domain.ChangeEvent) error {
				return h.OnIntermediateChanged(ctx, e.Kind, e.IDs)
			})
		case kind == domain.DeletedKind(kind.IndexType()):
			r.Register(kind, func(ctx context.Context, e domain.ChangeEvent) error {
				return h.OnDeleted(ctx, e.IndexType, e.IDs)
			})
		default:
			r.Register(kind, func(ctx context.Context, e domain.ChangeEvent) error {
				return h.OnChanged(ctx, e.IndexType, e.IDs)
			})
		}
	}
}

// Handle decodes an envelope and runs the handler of its kind. Unknown or
// unregistered kinds are logged and acknowledged. Malformed payloads fail
// permanently so the consumer dead-letters them without retrying.
func (r *Router) Handle(ctx context.Context, env *pkgkafka.Event) error {
	kind := domain.EventKind(env.EventType)
	h, ok := r.handlers[kind]
	if !ok {
		r.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", env.EventType),
			slog.String("event_id", env.EventID),
		)
		return nil
	}

	event, err := Decode(env)
	if err != nil {
		return backoff.Permanent(err)
	}

	if err := h(ctx, event); err != nil {
		return fmt.Errorf("handle %s: %w", kind, err)
	}
	return nil
}

// Decode turns an envelope into a change event. The index type is implied
// by the kind; a payload naming a different one is rejected.
func Decode(env *pkgkafka.Event) (domain.ChangeEvent, error) {
	kind, err := domain.ParseEventKind(env.EventType)
	if err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var payload domain.ChangePayload
	if err := env.UnmarshalData(&payload); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, kind, err)
	}

	ids := payload.IDs[:0:0]
	for _, id := range payload.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return domain.ChangeEvent{}, fmt.Errorf("%w: %s: no ids", ErrInvalidPayload, kind)
	}

	t := kind.IndexType()
	if payload.IndexType != "" && payload.IndexType != t {
		return domain.ChangeEvent{}, fmt.Errorf("%w: %s: index type %q does not match kind",
			ErrInvalidPayload, kind, payload.IndexType)
	}

	return domain.ChangeEvent{Kind: kind, IndexType: t, IDs: ids}, nil
}

// Encode wraps e in a bus envelope keyed by its first ID.
func Encode(ctx context.Context, e domain.ChangeEvent) (*pkgkafka.Event, error) {
	var key string
	if len(e.IDs) > 0 {
		key = e.IDs[0]
	}
	env, err := pkgkafka.NewEvent(string(e.Kind), key, string(e.IndexType), Source, e.Payload())
	if err != nil {
		return nil, err
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		env.WithCorrelationID(id)
	}
	return env, nil
}
