package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/repository"
	"github.com/utafrali/searchsync/pkg/database"
)

// locationSource returns a query yielding the stock location IDs reached
// from the entities of kind; $1 is the entity ID array.
func locationSource(kind domain.EventKind) (string, bool) {
	switch kind {
	case domain.KindStockLocationChanged:
		return `SELECT unnest($1::text[])`, true
	case domain.KindFulfillmentSetChanged:
		return `
			SELECT fs.location_id FROM fulfillment_sets fs
			WHERE fs.id = ANY($1)`, true
	case domain.KindServiceZoneChanged:
		return `
			SELECT fs.location_id FROM service_zones sz
			JOIN fulfillment_sets fs ON fs.id = sz.fulfillment_set_id
			WHERE sz.id = ANY($1)`, true
	case domain.KindShippingOptionChanged:
		return `
			SELECT fs.location_id FROM shipping_options so
			JOIN service_zones sz ON sz.id = so.service_zone_id
			JOIN fulfillment_sets fs ON fs.id = sz.fulfillment_set_id
			WHERE so.id = ANY($1)`, true
	default:
		return "", false
	}
}

const productsByLocationQuery = `
		SELECT DISTINCT v.product_id
		FROM product_variants v
		JOIN inventory_items ii ON ii.variant_id = v.id
		JOIN inventory_levels il ON il.inventory_item_id = ii.id
		WHERE il.location_id IN (%s)
		ORDER BY v.product_id`

const productsByInventoryItemQuery = `
		SELECT DISTINCT v.product_id
		FROM inventory_items ii
		JOIN product_variants v ON v.id = ii.variant_id
		WHERE ii.id = ANY($1)
		ORDER BY v.product_id`

// ProductIDsFor resolves intermediate entity IDs to the affected products.
func (s *Store) ProductIDsFor(ctx context.Context, kind domain.EventKind, ids []string) ([]string, error) {
	if !kind.IsIntermediate() {
		return nil, fmt.Errorf("resolve products: %w: %q", repository.ErrUnsupportedKind, kind)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var query string
	if kind == domain.KindInventoryItemChanged {
		query = productsByInventoryItemQuery
	} else {
		source, ok := locationSource(kind)
		if !ok {
			return nil, fmt.Errorf("resolve products: %w: %q", repository.ErrUnsupportedKind, kind)
		}
		query = fmt.Sprintf(productsByLocationQuery, source)
	}

	ctx, end := database.TraceQuery(ctx, "resolve_products", query)
	rows, err := s.db.Query(ctx, query, ids)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("resolve products for %s: %w", kind, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			end(err)
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		end(err)
		return nil, fmt.Errorf("iterate product ids: %w", err)
	}

	end(nil)
	return out, nil
}
