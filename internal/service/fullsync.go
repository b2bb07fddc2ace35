package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/searchsync/internal/dispatch"
	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/pkg/tracing"
)

// FullSyncReport summarises one full sync of an index.
type FullSyncReport struct {
	IndexType     domain.IndexType `json:"index_type"`
	Deleted       int              `json:"deleted"`
	Eligible      int              `json:"eligible"`
	EventsEmitted int              `json:"events_emitted"`
	StartedAt     time.Time        `json:"started_at"`
	Duration      time.Duration    `json:"duration"`
}

// RunFullSync re-derives the eligible set of t. Ineligible documents are
// deleted directly; eligible IDs are emitted as change events and indexed
// by OnChanged. Running it twice on unchanged data is harmless.
func (s *SyncService) RunFullSync(ctx context.Context, t domain.IndexType) (report *FullSyncReport, err error) {
	ctx, end := tracing.Start(ctx, tracerName, "SyncService.RunFullSync",
		attribute.String("index_type", string(t)))
	defer end(&err)

	report = &FullSyncReport{IndexType: t, StartedAt: time.Now().UTC()}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		fullSyncRuns.WithLabelValues(string(t), outcome(err)).Inc()
		fullSyncDuration.WithLabelValues(string(t)).Observe(report.Duration.Seconds())
	}()

	s.logger.InfoContext(ctx, "full sync started", slog.String("index_type", string(t)))

	set, err := s.collector.Collect(ctx, t, nil)
	if err != nil {
		return report, fmt.Errorf("full sync %s: %w", t, err)
	}
	report.Eligible = len(set.ToUpsert)

	for _, chunk := range dispatch.Chunk(set.ToDelete, s.opts.DeleteChunkSize) {
		if err = s.index.BatchDelete(ctx, t, chunk); err != nil {
			return report, fmt.Errorf("full sync %s: delete ineligible: %w", t, err)
		}
		report.Deleted += len(chunk)
		documentsDeleted.WithLabelValues(string(t)).Add(float64(len(chunk)))
	}

	report.EventsEmitted, err = s.dispatcher.Dispatch(ctx, domain.ChangedKind(t), t, set.ToUpsert)
	if err != nil {
		return report, fmt.Errorf("full sync %s: dispatch: %w", t, err)
	}

	s.logger.InfoContext(ctx, "full sync completed",
		slog.String("index_type", string(t)),
		slog.Int("deleted", report.Deleted),
		slog.Int("eligible", report.Eligible),
		slog.Int("events", report.EventsEmitted),
	)
	return report, nil
}

// RunFullSyncAll runs a full sync of every index type in order. A failing
// index does not stop the others; all errors are joined.
func (s *SyncService) RunFullSyncAll(ctx context.Context) ([]*FullSyncReport, error) {
	var (
		reports []*FullSyncReport
		errs    []error
	)
	for _, t := range domain.AllIndexTypes() {
		report, err := s.RunFullSync(ctx, t)
		reports = append(reports, report)
		if err != nil {
			s.logger.ErrorContext(ctx, "full sync failed",
				slog.String("index_type", string(t)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// EnsureSettings applies the default settings of every index type,
// creating indexes that do not exist yet.
func (s *SyncService) EnsureSettings(ctx context.Context) error {
	var errs []error
	for _, t := range domain.AllIndexTypes() {
		if err := s.index.UpdateSettings(ctx, t, domain.DefaultSettings(t)); err != nil {
			errs = append(errs, fmt.Errorf("update %s settings: %w", t, err))
			continue
		}
		s.logger.InfoContext(ctx, "index settings applied", slog.String("index_type", string(t)))
	}
	return errors.Join(errs...)
}
