package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/transform"
	"github.com/utafrali/searchsync/pkg/tracing"
)

// OnChanged brings the documents of ids up to date: eligible records are
// upserted, everything else is deleted, in a single batch call. An error
// from that batch call is returned exactly as the index client produced it.
func (s *SyncService) OnChanged(ctx context.Context, t domain.IndexType, ids []string) (err error) {
	ctx, end := tracing.Start(ctx, tracerName, "SyncService.OnChanged",
		attribute.String("index_type", string(t)),
		attribute.Int("ids", len(ids)))
	defer func() {
		handlerCalls.WithLabelValues("changed", outcome(err)).Inc()
		end(&err)
	}()

	if len(ids) == 0 {
		return nil
	}

	set, err := s.collector.Collect(ctx, t, ids)
	if err != nil {
		return fmt.Errorf("on changed %s: %w", t, err)
	}

	docs, deletes, err := s.buildDocuments(ctx, t, set)
	if err != nil {
		return fmt.Errorf("on changed %s: %w", t, err)
	}

	if len(docs) == 0 && len(deletes) == 0 {
		return nil
	}

	if err = s.index.Batch(ctx, t, docs, deletes); err != nil {
		s.logger.ErrorContext(ctx, "sync batch failed",
			slog.String("index_type", string(t)),
			slog.Any("ids", ids),
			slog.String("error", err.Error()),
		)
		return err
	}

	documentsUpserted.WithLabelValues(string(t)).Add(float64(len(docs)))
	documentsDeleted.WithLabelValues(string(t)).Add(float64(len(deletes)))
	s.logger.InfoContext(ctx, "sync batch applied",
		slog.String("index_type", string(t)),
		slog.Int("ids", len(ids)),
		slog.Int("upserted", len(docs)),
		slog.Int("deleted", len(deletes)),
	)
	return nil
}

// buildDocuments loads and transforms the upsert side of set. A record that
// disappeared or became ineligible since classification is deleted instead.
func (s *SyncService) buildDocuments(ctx context.Context, t domain.IndexType, set *domain.ChangeSet) ([]domain.Document, []string, error) {
	deletes := append([]string(nil), set.ToDelete...)
	if len(set.ToUpsert) == 0 {
		return nil, deletes, nil
	}

	docs := make([]domain.Document, 0, len(set.ToUpsert))

	switch t {
	case domain.IndexProducts:
		recs, err := s.records.LoadProducts(ctx, set.ToUpsert)
		if err != nil {
			return nil, nil, fmt.Errorf("load products: %w", err)
		}
		byID := make(map[string]*domain.ProductRecord, len(recs))
		for i := range recs {
			byID[recs[i].ID] = &recs[i]
		}
		for _, id := range set.ToUpsert {
			if doc := transform.Product(byID[id]); doc != nil {
				docs = append(docs, doc)
			} else {
				deletes = append(deletes, id)
			}
		}

	case domain.IndexReviews:
		recs, err := s.records.LoadReviews(ctx, set.ToUpsert)
		if err != nil {
			return nil, nil, fmt.Errorf("load reviews: %w", err)
		}
		byID := make(map[string]*domain.ReviewRecord, len(recs))
		for i := range recs {
			byID[recs[i].ID] = &recs[i]
		}
		for _, id := range set.ToUpsert {
			if doc := transform.Review(byID[id]); doc != nil {
				docs = append(docs, doc)
			} else {
				deletes = append(deletes, id)
			}
		}

	default:
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownIndexType, t)
	}

	return docs, deletes, nil
}

// OnDeleted removes ids from the index without consulting the system of
// record.
func (s *SyncService) OnDeleted(ctx context.Context, t domain.IndexType, ids []string) (err error) {
	ctx, end := tracing.Start(ctx, tracerName, "SyncService.OnDeleted",
		attribute.String("index_type", string(t)),
		attribute.Int("ids", len(ids)))
	defer func() {
		handlerCalls.WithLabelValues("deleted", outcome(err)).Inc()
		end(&err)
	}()

	if len(ids) == 0 {
		return nil
	}

	if err = s.index.BatchDelete(ctx, t, ids); err != nil {
		s.logger.ErrorContext(ctx, "sync delete failed",
			slog.String("index_type", string(t)),
			slog.Any("ids", ids),
			slog.String("error", err.Error()),
		)
		return err
	}

	documentsDeleted.WithLabelValues(string(t)).Add(float64(len(ids)))
	s.logger.InfoContext(ctx, "documents deleted",
		slog.String("index_type", string(t)),
		slog.Int("deleted", len(ids)),
	)
	return nil
}

// OnIntermediateChanged resolves changed intermediate entities to the
// products that embed them and emits products-changed events for those.
func (s *SyncService) OnIntermediateChanged(ctx context.Context, kind domain.EventKind, ids []string) (err error) {
	ctx, end := tracing.Start(ctx, tracerName, "SyncService.OnIntermediateChanged",
		attribute.String("kind", string(kind)),
		attribute.Int("ids", len(ids)))
	defer func() {
		handlerCalls.WithLabelValues("intermediate", outcome(err)).Inc()
		end(&err)
	}()

	if !kind.IsIntermediate() {
		return fmt.Errorf("on intermediate changed: %w: %q", domain.ErrUnknownEventKind, kind)
	}
	if len(ids) == 0 {
		return nil
	}

	productIDs, err := s.relations.ProductIDsFor(ctx, kind, ids)
	if err != nil {
		return fmt.Errorf("on intermediate changed %s: %w", kind, err)
	}

	n, err := s.dispatcher.Dispatch(ctx, domain.KindProductsChanged, domain.IndexProducts, productIDs)
	if err != nil {
		return fmt.Errorf("on intermediate changed %s: %w", kind, err)
	}

	s.logger.DebugContext(ctx, "intermediate change fanned out",
		slog.String("kind", string(kind)),
		slog.Int("ids", len(ids)),
		slog.Int("products", len(productIDs)),
		slog.Int("events", n),
	)
	return nil
}
