package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/repository"
	"github.com/utafrali/searchsync/pkg/database"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return mock
}

func strPtr(s string) *string { return &s }

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var eligibilityColumns = []string{"id", "status", "deleted_at"}

// ─── Eligibility ────────────────────────────────────────────────────────────

func TestScanEligibility_FullScanIncludesSoftDeleted(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	deleted := now
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, status AS status, deleted_at FROM products ORDER BY id")).
		WillReturnRows(pgxmock.NewRows(eligibilityColumns).
			AddRow("p1", "published", (*time.Time)(nil)).
			AddRow("p2", "draft", (*time.Time)(nil)).
			AddRow("p3", "published", &deleted))

	rows, err := store.ScanEligibility(context.Background(), domain.IndexProducts, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.Eligibility{ID: "p1", Status: "published"}, rows[0])
	assert.Equal(t, "draft", rows[1].Status)
	require.NotNil(t, rows[2].DeletedAt)
	assert.True(t, rows[2].DeletedAt.Equal(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanEligibility_ReviewsWithFilter(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, '' AS status, deleted_at FROM reviews WHERE deleted_at IS NULL ORDER BY id")).
		WillReturnRows(pgxmock.NewRows(eligibilityColumns).AddRow("r1", "", (*time.Time)(nil)))

	rows, err := store.ScanEligibility(context.Background(), domain.IndexReviews,
		repository.Where(repository.IsNull(repository.FieldDeletedAt)))
	require.NoError(t, err)
	assert.Equal(t, []domain.Eligibility{{ID: "r1"}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanEligibility_RejectsUnknownColumn(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	_, err := store.ScanEligibility(context.Background(), domain.IndexReviews,
		repository.Where(repository.Eq(repository.FieldStatus, "published")))
	assert.ErrorIs(t, err, repository.ErrInvalidFilter)

	_, err = store.ScanEligibility(context.Background(), "orders", repository.Filter{})
	assert.ErrorIs(t, err, domain.ErrUnknownIndexType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanEligibility_QueryError(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	mock.ExpectQuery("SELECT .+ FROM products").WillReturnError(errors.New("connection reset"))

	_, err := store.ScanEligibility(context.Background(), domain.IndexProducts, repository.Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupEligibility(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	ids := []string{"p1", "p9"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = ANY($1) ORDER BY id")).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows(eligibilityColumns).AddRow("p1", "published", (*time.Time)(nil)))

	rows, err := store.LookupEligibility(context.Background(), domain.IndexProducts, ids)
	require.NoError(t, err)
	assert.Equal(t, []domain.Eligibility{{ID: "p1", Status: "published"}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupEligibility_EmptySkipsQuery(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	rows, err := NewStore(mock).LookupEligibility(context.Background(), domain.IndexProducts, nil)
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhere(t *testing.T) {
	table := eligibilityTables[domain.IndexProducts]
	where, args, err := buildWhere(table, repository.Where(
		repository.NotEq(repository.FieldStatus, "published"),
		repository.In(repository.FieldID, []string{"a", "b"}),
		repository.NotNull(repository.FieldDeletedAt),
	))
	require.NoError(t, err)
	assert.Equal(t, "WHERE status IS DISTINCT FROM $1 AND id = ANY($2) AND deleted_at IS NOT NULL", where)
	assert.Equal(t, []any{"published", []string{"a", "b"}}, args)

	where, args, err = buildWhere(table, repository.Filter{})
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

// ─── Records ────────────────────────────────────────────────────────────────

var productColumns = []string{
	"id", "title", "subtitle", "handle", "description", "status", "thumbnail",
	"base_price", "currency", "created_at", "updated_at", "deleted_at",
	"type_id", "type_value", "collection_id", "collection_title", "collection_handle",
	"brand_id", "brand_name",
}

func TestLoadProducts_AssemblesRelations(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	ids := []string{"p2", "p1", "gone"}

	mock.ExpectQuery("SELECT .+ FROM products p LEFT JOIN product_types").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow("p1", "Shirt", "", "shirt", "", "published", "", int64(4999), "eur",
				now, now, (*time.Time)(nil),
				strPtr("ptyp_1"), strPtr("Shirts"), (*string)(nil), (*string)(nil), (*string)(nil),
				strPtr("br_1"), strPtr("Acme")).
			AddRow("p2", "Hat", "Warm", "hat", "", "draft", "", int64(1999), "eur",
				now, now, (*time.Time)(nil),
				(*string)(nil), (*string)(nil), strPtr("col_1"), strPtr("Winter"), strPtr("winter"),
				(*string)(nil), (*string)(nil)))

	mock.ExpectQuery("SELECT .+ FROM product_tags").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "id", "value"}).
			AddRow("p1", "t1", "linen").
			AddRow("p1", "t2", "summer"))

	mock.ExpectQuery("SELECT .+ FROM product_categories pc JOIN categories").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "id", "name", "handle"}).
			AddRow("p2", "cat_1", "Accessories", "accessories"))

	mock.ExpectQuery("SELECT .+ FROM product_variants WHERE").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "id", "title", "sku", "price"}).
			AddRow("p1", "var_1", "S", "SH-S", int64(4999)))

	mock.ExpectQuery("SELECT DISTINCT .+ JOIN stock_locations").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "id", "name", "country_code"}).
			AddRow("p1", "sloc_1", "Berlin", "de"))

	recs, err := store.LoadProducts(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "p2", recs[0].ID)
	assert.Equal(t, domain.ProductStatusDraft, recs[0].Status)
	assert.Equal(t, &domain.Collection{ID: "col_1", Title: "Winter", Handle: "winter"}, recs[0].Collection)
	assert.Equal(t, []domain.Category{{ID: "cat_1", Name: "Accessories", Handle: "accessories"}}, recs[0].Categories)
	assert.Nil(t, recs[0].Brand)

	p1 := recs[1]
	assert.Equal(t, &domain.ProductType{ID: "ptyp_1", Value: "Shirts"}, p1.Type)
	assert.Equal(t, &domain.Brand{ID: "br_1", Name: "Acme"}, p1.Brand)
	assert.Len(t, p1.Tags, 2)
	assert.Equal(t, []domain.Variant{{ID: "var_1", Title: "S", SKU: "SH-S", Price: 4999}}, p1.Variants)
	assert.Equal(t, []domain.StockLocationRecord{{ID: "sloc_1", Name: "Berlin", CountryCode: "de"}}, p1.StockLocations)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadProducts_NoRowsSkipsRelations(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	mock.ExpectQuery("SELECT .+ FROM products p").
		WithArgs([]string{"gone"}).
		WillReturnRows(pgxmock.NewRows(productColumns))

	recs, err := store.LoadProducts(context.Background(), []string{"gone"})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadProducts_RelationError(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	ids := []string{"p1"}
	mock.ExpectQuery("SELECT .+ FROM products p").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow("p1", "Shirt", "", "shirt", "", "published", "", int64(1), "eur",
				now, now, (*time.Time)(nil),
				(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
				(*string)(nil), (*string)(nil)))
	mock.ExpectQuery("SELECT .+ FROM product_tags").
		WithArgs(ids).
		WillReturnError(errors.New("timeout"))

	_, err := store.LoadProducts(context.Background(), ids)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load product tags")
	assert.NoError(t, mock.ExpectationsWereMet())
}

var reviewColumns = []string{
	"id", "reference", "reference_id", "rating", "customer_note", "seller_note", "created_at", "deleted_at",
}

func TestLoadReviews_PreservesRequestOrder(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	ids := []string{"r2", "r1"}
	mock.ExpectQuery("SELECT .+ FROM reviews WHERE id").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows(reviewColumns).
			AddRow("r1", "product", "p1", 5, strPtr("great"), (*string)(nil), now, (*time.Time)(nil)).
			AddRow("r2", "seller", "s1", 2, (*string)(nil), strPtr("sorry"), now, (*time.Time)(nil)))

	recs, err := store.LoadReviews(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r2", recs[0].ID)
	assert.Equal(t, "sorry", *recs[0].SellerNote)
	assert.Equal(t, "r1", recs[1].ID)
	assert.Equal(t, 5, recs[1].Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─── Relations ──────────────────────────────────────────────────────────────

func TestProductIDsFor_ServiceZone(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	ids := []string{"sz_1"}
	mock.ExpectQuery("SELECT DISTINCT v.product_id .+ FROM service_zones sz .+ WHERE sz.id = ANY").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}).AddRow("p1").AddRow("p2"))

	got, err := store.ProductIDsFor(context.Background(), domain.KindServiceZoneChanged, ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductIDsFor_InventoryItem(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	store := NewStore(mock)

	ids := []string{"iitem_1"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM inventory_items ii JOIN product_variants v ON v.id = ii.variant_id WHERE ii.id = ANY($1)")).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}).AddRow("p3"))

	got, err := store.ProductIDsFor(context.Background(), domain.KindInventoryItemChanged, ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductIDsFor_RejectsDirectKinds(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()

	_, err := NewStore(mock).ProductIDsFor(context.Background(), domain.KindProductsChanged, []string{"p1"})
	assert.ErrorIs(t, err, repository.ErrUnsupportedKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationSource_CoversLocationKinds(t *testing.T) {
	for _, kind := range domain.AllEventKinds() {
		if !kind.IsIntermediate() || kind == domain.KindInventoryItemChanged {
			continue
		}
		_, ok := locationSource(kind)
		assert.True(t, ok, kind)
	}
}
