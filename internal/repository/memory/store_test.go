package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/repository"
)

func TestScanEligibility(t *testing.T) {
	ctx := context.Background()
	deleted := time.Now()
	s := New()
	s.PutProduct(domain.ProductRecord{ID: "p2", Status: domain.ProductStatusDraft})
	s.PutProduct(domain.ProductRecord{ID: "p1", Status: domain.ProductStatusPublished})
	s.PutProduct(domain.ProductRecord{ID: "p3", Status: domain.ProductStatusPublished, DeletedAt: &deleted})

	all, err := s.ScanEligibility(ctx, domain.IndexProducts, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p1", all[0].ID)

	live, err := s.ScanEligibility(ctx, domain.IndexProducts,
		repository.Where(repository.IsNull(repository.FieldDeletedAt)))
	require.NoError(t, err)
	assert.Len(t, live, 2)

	_, err = s.ScanEligibility(ctx, "orders", repository.Filter{})
	assert.ErrorIs(t, err, domain.ErrUnknownIndexType)
}

func TestLookupAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutReview(domain.ReviewRecord{ID: "r1", Reference: "product", ReferenceID: "p1"})
	s.PutReview(domain.ReviewRecord{ID: "r2", Reference: "product", ReferenceID: "p1"})

	rows, err := s.LookupEligibility(ctx, domain.IndexReviews, []string{"r2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Eligibility{{ID: "r2"}}, rows)

	recs, err := s.LoadReviews(ctx, []string{"r2", "r1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r2", recs[0].ID)

	s.Remove("r1")
	recs, err = s.LoadReviews(ctx, []string{"r1"})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 3, s.Lookups())
}

func TestProductIDsFor(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Relate(domain.KindStockLocationChanged, "sloc_1", "p2", "p1")
	s.Relate(domain.KindStockLocationChanged, "sloc_2", "p1")

	ids, err := s.ProductIDsFor(ctx, domain.KindStockLocationChanged, []string{"sloc_1", "sloc_2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)

	ids, err = s.ProductIDsFor(ctx, domain.KindServiceZoneChanged, []string{"sz_1"})
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = s.ProductIDsFor(ctx, domain.KindReviewsChanged, []string{"r1"})
	assert.ErrorIs(t, err, repository.ErrUnsupportedKind)
}

func TestFailWith(t *testing.T) {
	s := New()
	boom := errors.New("db down")
	s.FailWith(boom)

	_, err := s.ScanEligibility(context.Background(), domain.IndexProducts, repository.Filter{})
	assert.ErrorIs(t, err, boom)
	_, err = s.LoadProducts(context.Background(), []string{"p1"})
	assert.ErrorIs(t, err, boom)
}
