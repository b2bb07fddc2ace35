// Package service holds the sync orchestrator and the event-driven sync
// handlers. It owns no state: every call recomputes from the system of
// record.
package service

import (
	"context"
	"log/slog"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
	"github.com/utafrali/searchsync/internal/repository"
)

const tracerName = "github.com/utafrali/searchsync/internal/service"

// DefaultDeleteChunkSize bounds the IDs per delete call in a full sync.
const DefaultDeleteChunkSize = 1000

// ChangeCollector classifies IDs into a change set.
type ChangeCollector interface {
	Collect(ctx context.Context, t domain.IndexType, candidates []string) (*domain.ChangeSet, error)
}

// EventDispatcher fans IDs out as chunked change events.
type EventDispatcher interface {
	Dispatch(ctx context.Context, kind domain.EventKind, t domain.IndexType, ids []string) (int, error)
}

// Deps are the collaborators of a SyncService.
type Deps struct {
	Index      index.Client
	Collector  ChangeCollector
	Records    repository.RecordSource
	Relations  repository.RelationResolver
	Dispatcher EventDispatcher
}

// Options tune a SyncService.
type Options struct {
	DeleteChunkSize int
	IndexPrefix     string
	AppID           string
}

// SyncService keeps the search index aligned with the system of record.
type SyncService struct {
	index      index.Client
	collector  ChangeCollector
	records    repository.RecordSource
	relations  repository.RelationResolver
	dispatcher EventDispatcher
	opts       Options
	logger     *slog.Logger
}

// NewSyncService creates a sync service.
func NewSyncService(deps Deps, opts Options, logger *slog.Logger) *SyncService {
	if opts.DeleteChunkSize <= 0 {
		opts.DeleteChunkSize = DefaultDeleteChunkSize
	}
	return &SyncService{
		index:      deps.Index,
		collector:  deps.Collector,
		records:    deps.Records,
		relations:  deps.Relations,
		dispatcher: deps.Dispatcher,
		opts:       opts,
		logger:     logger,
	}
}
