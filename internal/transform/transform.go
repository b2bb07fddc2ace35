// Package transform converts system-of-record records into search
// documents. It is pure: no I/O, same input gives an equal output.
package transform

import (
	"strings"

	"github.com/utafrali/searchsync/internal/domain"
)

// ProductEligible reports whether a product row belongs in the index.
func ProductEligible(e domain.Eligibility) bool {
	return e.DeletedAt == nil && e.Status == string(domain.ProductStatusPublished)
}

// ReviewEligible reports whether a review row belongs in the index.
func ReviewEligible(e domain.Eligibility) bool {
	return e.DeletedAt == nil
}

// Eligible applies the eligibility rule of t. Unknown types are never
// eligible.
func Eligible(t domain.IndexType, e domain.Eligibility) bool {
	switch t {
	case domain.IndexProducts:
		return ProductEligible(e)
	case domain.IndexReviews:
		return ReviewEligible(e)
	default:
		return false
	}
}

// Product flattens rec into a document, or returns nil when rec is not
// eligible.
func Product(rec *domain.ProductRecord) *domain.ProductDocument {
	if rec == nil {
		return nil
	}
	if !ProductEligible(domain.Eligibility{ID: rec.ID, Status: string(rec.Status), DeletedAt: rec.DeletedAt}) {
		return nil
	}

	doc := &domain.ProductDocument{
		ID:             rec.ID,
		Title:          rec.Title,
		Subtitle:       rec.Subtitle,
		Handle:         rec.Handle,
		Description:    rec.Description,
		Thumbnail:      rec.Thumbnail,
		BasePrice:      rec.BasePrice,
		Currency:       rec.Currency,
		Tags:           make([]domain.ValueDocument, 0, len(rec.Tags)),
		Categories:     make([]domain.CategoryDocument, 0, len(rec.Categories)),
		Variants:       make([]domain.VariantDocument, 0, len(rec.Variants)),
		StockLocations: make([]domain.LocationDocument, 0, len(rec.StockLocations)),
		Countries:      []string{},
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}

	if rec.Type != nil {
		doc.Type = &domain.ValueDocument{Value: rec.Type.Value}
	}
	if rec.Collection != nil {
		doc.Collection = &domain.CollectionDoc{ID: rec.Collection.ID, Title: rec.Collection.Title}
	}
	if rec.Brand != nil {
		doc.Brand = rec.Brand.Name
	}

	for _, tag := range rec.Tags {
		doc.Tags = append(doc.Tags, domain.ValueDocument{Value: tag.Value})
	}
	for _, c := range rec.Categories {
		doc.Categories = append(doc.Categories, domain.CategoryDocument{ID: c.ID, Name: c.Name})
	}
	for _, v := range rec.Variants {
		doc.Variants = append(doc.Variants, domain.VariantDocument{
			ID:    v.ID,
			Title: v.Title,
			SKU:   v.SKU,
			Price: v.Price,
		})
	}

	seen := make(map[string]struct{})
	for _, loc := range rec.StockLocations {
		flat := StockLocation(loc)
		doc.StockLocations = append(doc.StockLocations, flat)
		if flat.CountryCode == "" {
			continue
		}
		if _, dup := seen[flat.CountryCode]; dup {
			continue
		}
		seen[flat.CountryCode] = struct{}{}
		doc.Countries = append(doc.Countries, flat.CountryCode)
	}

	return doc
}

// StockLocation flattens a stock location into its document form. Country
// codes are normalised to lower case.
func StockLocation(loc domain.StockLocationRecord) domain.LocationDocument {
	return domain.LocationDocument{
		ID:          loc.ID,
		Name:        loc.Name,
		CountryCode: strings.ToLower(strings.TrimSpace(loc.CountryCode)),
	}
}

// Review converts rec, or returns nil when it is soft-deleted or not
// attached to anything.
func Review(rec *domain.ReviewRecord) *domain.ReviewDocument {
	if rec == nil {
		return nil
	}
	if !ReviewEligible(domain.Eligibility{ID: rec.ID, DeletedAt: rec.DeletedAt}) {
		return nil
	}
	if rec.Reference == "" || rec.ReferenceID == "" {
		return nil
	}
	return &domain.ReviewDocument{
		ID:           rec.ID,
		Reference:    rec.Reference,
		ReferenceID:  rec.ReferenceID,
		Rating:       rec.Rating,
		CustomerNote: cloneString(rec.CustomerNote),
		SellerNote:   cloneString(rec.SellerNote),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
