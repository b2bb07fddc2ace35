package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
	"github.com/utafrali/searchsync/pkg/tracing"
)

// IndexState describes one remote index.
type IndexState struct {
	Exists bool   `json:"exists"`
	Name   string `json:"name"`
}

// IndexStatus is the state of every index.
type IndexStatus struct {
	AppID    string     `json:"appId"`
	Products IndexState `json:"productIndex"`
	Reviews  IndexState `json:"reviewIndex"`
}

// IndexStatus reports whether each index exists. Transport failures are
// returned as-is.
func (s *SyncService) IndexStatus(ctx context.Context) (status *IndexStatus, err error) {
	ctx, end := tracing.Start(ctx, tracerName, "SyncService.IndexStatus")
	defer end(&err)

	productsExist, err := s.index.Exists(ctx, domain.IndexProducts)
	if err != nil {
		return nil, err
	}
	reviewsExist, err := s.index.Exists(ctx, domain.IndexReviews)
	if err != nil {
		return nil, err
	}

	return &IndexStatus{
		AppID: s.opts.AppID,
		Products: IndexState{
			Exists: productsExist,
			Name:   index.Name(s.opts.IndexPrefix, domain.IndexProducts),
		},
		Reviews: IndexState{
			Exists: reviewsExist,
			Name:   index.Name(s.opts.IndexPrefix, domain.IndexReviews),
		},
	}, nil
}

// Search runs a read query against the index of t.
func (s *SyncService) Search(ctx context.Context, t domain.IndexType, params index.SearchParams) (result *index.SearchResult, err error) {
	ctx, end := tracing.Start(ctx, tracerName, "SyncService.Search",
		attribute.String("index_type", string(t)))
	defer end(&err)

	if !t.IsValid() {
		return nil, domain.ErrUnknownIndexType
	}
	return s.index.Search(ctx, t, params.Normalize())
}
