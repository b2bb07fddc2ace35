// Package collector classifies IDs into upserts and deletes against the
// system of record.
package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/repository"
	"github.com/utafrali/searchsync/internal/transform"
)

// Collector builds change sets.
type Collector struct {
	source repository.EligibilitySource
	logger *slog.Logger
}

// New creates a collector reading from source.
func New(source repository.EligibilitySource, logger *slog.Logger) *Collector {
	return &Collector{source: source, logger: logger}
}

// Collect classifies candidates for t. A nil candidates slice means every
// row of t, soft-deleted rows included. Candidates with no row are deleted.
// Blank IDs name no record and are not candidates. Every other distinct ID
// lands in exactly one list; a deletion timestamp always wins over status.
func (c *Collector) Collect(ctx context.Context, t domain.IndexType, candidates []string) (*domain.ChangeSet, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("collect: %w: %q", domain.ErrUnknownIndexType, t)
	}

	set := &domain.ChangeSet{
		ToUpsert: []string{},
		ToDelete: []string{},
	}

	if candidates == nil {
		rows, err := c.source.ScanEligibility(ctx, t, repository.Filter{})
		if err != nil {
			return nil, fmt.Errorf("collect %s: scan: %w", t, err)
		}
		seen := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			if _, dup := seen[row.ID]; dup {
				continue
			}
			seen[row.ID] = struct{}{}
			classify(set, t, row)
		}
		c.log(ctx, t, set, "full")
		return set, nil
	}

	ids := dedupe(candidates)
	if len(ids) == 0 {
		return set, nil
	}

	rows, err := c.source.LookupEligibility(ctx, t, ids)
	if err != nil {
		return nil, fmt.Errorf("collect %s: lookup: %w", t, err)
	}
	byID := make(map[string]domain.Eligibility, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			set.ToDelete = append(set.ToDelete, id)
			continue
		}
		classify(set, t, row)
	}
	c.log(ctx, t, set, "restricted")
	return set, nil
}

func classify(set *domain.ChangeSet, t domain.IndexType, row domain.Eligibility) {
	if transform.Eligible(t, row) {
		set.ToUpsert = append(set.ToUpsert, row.ID)
	} else {
		set.ToDelete = append(set.ToDelete, row.ID)
	}
}

func (c *Collector) log(ctx context.Context, t domain.IndexType, set *domain.ChangeSet, scope string) {
	c.logger.DebugContext(ctx, "change set collected",
		slog.String("index_type", string(t)),
		slog.String("scope", scope),
		slog.Int("to_upsert", len(set.ToUpsert)),
		slog.Int("to_delete", len(set.ToDelete)),
		slog.Int("classified", set.Len()),
	)
}

// dedupe drops repeated and empty IDs, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
