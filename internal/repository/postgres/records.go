package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/pkg/database"
)

const productsQuery = `
		SELECT p.id, p.title, COALESCE(p.subtitle, ''), p.handle, COALESCE(p.description, ''),
			   p.status, COALESCE(p.thumbnail, ''), p.base_price, p.currency,
			   p.created_at, p.updated_at, p.deleted_at,
			   pt.id, pt.value, c.id, c.title, c.handle, b.id, b.name
		FROM products p
		LEFT JOIN product_types pt ON pt.id = p.type_id
		LEFT JOIN collections c ON c.id = p.collection_id
		LEFT JOIN brands b ON b.id = p.brand_id
		WHERE p.id = ANY($1)`

const productTagsQuery = `
		SELECT product_id, id, value
		FROM product_tags
		WHERE product_id = ANY($1)
		ORDER BY product_id, value`

const productCategoriesQuery = `
		SELECT pc.product_id, c.id, c.name, c.handle
		FROM product_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id = ANY($1) AND c.deleted_at IS NULL
		ORDER BY pc.product_id, c.name`

const productVariantsQuery = `
		SELECT product_id, id, title, COALESCE(sku, ''), price
		FROM product_variants
		WHERE product_id = ANY($1) AND deleted_at IS NULL
		ORDER BY product_id, id`

const productLocationsQuery = `
		SELECT DISTINCT v.product_id, sl.id, sl.name, COALESCE(sl.country_code, '')
		FROM product_variants v
		JOIN inventory_items ii ON ii.variant_id = v.id
		JOIN inventory_levels il ON il.inventory_item_id = ii.id
		JOIN stock_locations sl ON sl.id = il.location_id
		WHERE v.product_id = ANY($1) AND v.deleted_at IS NULL AND sl.deleted_at IS NULL
		ORDER BY v.product_id, sl.id`

const reviewsQuery = `
		SELECT id, reference, reference_id, rating, customer_note, seller_note, created_at, deleted_at
		FROM reviews
		WHERE id = ANY($1)`

// LoadProducts returns products with their relations, in the order of ids.
func (s *Store) LoadProducts(ctx context.Context, ids []string) ([]domain.ProductRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byID, err := s.loadProductRows(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(byID) == 0 {
		return nil, nil
	}

	if err := s.queryRelation(ctx, "load_product_tags", productTagsQuery, ids, func(rows pgx.Rows) error {
		var productID string
		var tag domain.ProductTag
		if err := rows.Scan(&productID, &tag.ID, &tag.Value); err != nil {
			return err
		}
		if p, ok := byID[productID]; ok {
			p.Tags = append(p.Tags, tag)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load product tags: %w", err)
	}

	if err := s.queryRelation(ctx, "load_product_categories", productCategoriesQuery, ids, func(rows pgx.Rows) error {
		var productID string
		var cat domain.Category
		if err := rows.Scan(&productID, &cat.ID, &cat.Name, &cat.Handle); err != nil {
			return err
		}
		if p, ok := byID[productID]; ok {
			p.Categories = append(p.Categories, cat)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load product categories: %w", err)
	}

	if err := s.queryRelation(ctx, "load_product_variants", productVariantsQuery, ids, func(rows pgx.Rows) error {
		var productID string
		var v domain.Variant
		if err := rows.Scan(&productID, &v.ID, &v.Title, &v.SKU, &v.Price); err != nil {
			return err
		}
		if p, ok := byID[productID]; ok {
			p.Variants = append(p.Variants, v)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load product variants: %w", err)
	}

	if err := s.queryRelation(ctx, "load_product_locations", productLocationsQuery, ids, func(rows pgx.Rows) error {
		var productID string
		var loc domain.StockLocationRecord
		if err := rows.Scan(&productID, &loc.ID, &loc.Name, &loc.CountryCode); err != nil {
			return err
		}
		if p, ok := byID[productID]; ok {
			p.StockLocations = append(p.StockLocations, loc)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load product stock locations: %w", err)
	}

	out := make([]domain.ProductRecord, 0, len(byID))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Store) loadProductRows(ctx context.Context, ids []string) (map[string]*domain.ProductRecord, error) {
	ctx, end := database.TraceQuery(ctx, "load_products", productsQuery)
	rows, err := s.db.Query(ctx, productsQuery, ids)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("load products: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*domain.ProductRecord, len(ids))
	for rows.Next() {
		var (
			p                             domain.ProductRecord
			status                        string
			typeID, typeValue             *string
			collID, collTitle, collHandle *string
			brandID, brandName            *string
		)
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Subtitle, &p.Handle, &p.Description,
			&status, &p.Thumbnail, &p.BasePrice, &p.Currency,
			&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
			&typeID, &typeValue, &collID, &collTitle, &collHandle, &brandID, &brandName,
		); err != nil {
			end(err)
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Status = domain.ProductStatus(status)
		if typeID != nil {
			p.Type = &domain.ProductType{ID: *typeID, Value: deref(typeValue)}
		}
		if collID != nil {
			p.Collection = &domain.Collection{ID: *collID, Title: deref(collTitle), Handle: deref(collHandle)}
		}
		if brandID != nil {
			p.Brand = &domain.Brand{ID: *brandID, Name: deref(brandName)}
		}
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		end(err)
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	end(nil)
	return byID, nil
}

// queryRelation runs a relation query keyed by product IDs and hands each
// row to scan.
func (s *Store) queryRelation(ctx context.Context, op, query string, ids []string, scan func(pgx.Rows) error) error {
	ctx, end := database.TraceQuery(ctx, op, query)
	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		end(err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			end(err)
			return err
		}
	}
	err = rows.Err()
	end(err)
	return err
}

// LoadReviews returns reviews in the order of ids.
func (s *Store) LoadReviews(ctx context.Context, ids []string) ([]domain.ReviewRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, end := database.TraceQuery(ctx, "load_reviews", reviewsQuery)
	rows, err := s.db.Query(ctx, reviewsQuery, ids)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("load reviews: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.ReviewRecord, len(ids))
	for rows.Next() {
		var r domain.ReviewRecord
		if err := rows.Scan(
			&r.ID, &r.Reference, &r.ReferenceID, &r.Rating,
			&r.CustomerNote, &r.SellerNote, &r.CreatedAt, &r.DeletedAt,
		); err != nil {
			end(err)
			return nil, fmt.Errorf("scan review: %w", err)
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		end(err)
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	end(nil)

	out := make([]domain.ReviewRecord, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
			delete(byID, id)
		}
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
