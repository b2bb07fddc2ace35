package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownIndexType is returned when a string names no known index.
var ErrUnknownIndexType = errors.New("unknown index type")

// IndexType identifies one logical search index.
type IndexType string

const (
	IndexProducts IndexType = "products"
	IndexReviews  IndexType = "reviews"
)

// AllIndexTypes lists every index type in sync order.
func AllIndexTypes() []IndexType {
	return []IndexType{IndexProducts, IndexReviews}
}

// IsValid reports whether t is a known index type.
func (t IndexType) IsValid() bool {
	switch t {
	case IndexProducts, IndexReviews:
		return true
	}
	return false
}

func (t IndexType) String() string { return string(t) }

// ParseIndexType converts s to an IndexType.
func ParseIndexType(s string) (IndexType, error) {
	t := IndexType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownIndexType, s)
	}
	return t, nil
}

// Document is anything that can be written to a search index. The ID must
// equal the system-of-record identifier.
type Document interface {
	DocumentID() string
}

// IndexSettings configures relevance and faceting for one index.
type IndexSettings struct {
	SearchableAttributes  []string `json:"searchableAttributes,omitempty"`
	AttributesForFaceting []string `json:"attributesForFaceting,omitempty"`
}

// FacetSpec is one parsed AttributesForFaceting entry.
type FacetSpec struct {
	Attribute string
	// FilterOnly facets can be filtered on but produce no counts.
	FilterOnly bool
	// Searchable facets allow searching within facet values.
	Searchable bool
}

// ParseFacet parses "attr", "filterOnly(attr)" and "searchable(attr)".
func ParseFacet(s string) FacetSpec {
	s = strings.TrimSpace(s)
	if inner, ok := unwrap(s, "filterOnly"); ok {
		return FacetSpec{Attribute: inner, FilterOnly: true}
	}
	if inner, ok := unwrap(s, "searchable"); ok {
		return FacetSpec{Attribute: inner, Searchable: true}
	}
	return FacetSpec{Attribute: s}
}

func unwrap(s, fn string) (string, bool) {
	rest, ok := strings.CutPrefix(s, fn+"(")
	if !ok {
		return "", false
	}
	inner, ok := strings.CutSuffix(rest, ")")
	return strings.TrimSpace(inner), ok
}

// Facets returns the parsed faceting attributes.
func (s IndexSettings) Facets() []FacetSpec {
	out := make([]FacetSpec, 0, len(s.AttributesForFaceting))
	for _, f := range s.AttributesForFaceting {
		out = append(out, ParseFacet(f))
	}
	return out
}

// DefaultSettings returns the settings applied to t at startup.
func DefaultSettings(t IndexType) IndexSettings {
	switch t {
	case IndexProducts:
		return IndexSettings{
			SearchableAttributes: []string{
				"title",
				"subtitle",
				"tags.value",
				"type.value",
				"categories.name",
				"collection.title",
				"variants.title",
			},
		}
	case IndexReviews:
		return IndexSettings{
			AttributesForFaceting: []string{
				"filterOnly(reference_id)",
				"filterOnly(reference)",
			},
		}
	default:
		return IndexSettings{}
	}
}
