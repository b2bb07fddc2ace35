package elasticsearch

import (
	"maps"
	"slices"
	"strings"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
)

const (
	keywordIgnoreAbove = 256
	maxFacetValues     = 100
)

// buildMappings translates index settings into an Elasticsearch mapping.
// Searchable attributes become text with a keyword sub-field, facet
// attributes become keyword. Dotted paths become object properties.
func buildMappings(settings domain.IndexSettings) map[string]any {
	props := map[string]any{
		"id": map[string]any{"type": "keyword"},
	}
	for _, attr := range settings.SearchableAttributes {
		setProperty(props, attr, map[string]any{
			"type": "text",
			"fields": map[string]any{
				"keyword": map[string]any{"type": "keyword", "ignore_above": keywordIgnoreAbove},
			},
		})
	}
	for _, facet := range settings.Facets() {
		if slices.Contains(settings.SearchableAttributes, facet.Attribute) {
			continue
		}
		setProperty(props, facet.Attribute, map[string]any{"type": "keyword"})
	}
	return map[string]any{"properties": props}
}

func setProperty(props map[string]any, path string, def map[string]any) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		props[head] = def
		return
	}
	obj, ok := props[head].(map[string]any)
	if !ok {
		obj = map[string]any{}
		props[head] = obj
	}
	inner, ok := obj["properties"].(map[string]any)
	if !ok {
		inner = map[string]any{}
		obj["properties"] = inner
	}
	setProperty(inner, rest, def)
}

// exactField returns the field used for term filters and aggregations.
// Searchable attributes are analysed text, so exact matching goes through
// their keyword sub-field.
func exactField(settings domain.IndexSettings, attr string) string {
	if slices.Contains(settings.SearchableAttributes, attr) {
		return attr + ".keyword"
	}
	return attr
}

// buildSearchQuery constructs the query DSL for params.
func buildSearchQuery(settings domain.IndexSettings, params index.SearchParams) map[string]any {
	var must any
	if q := strings.TrimSpace(params.Query); q != "" {
		match := map[string]any{
			"query": q,
			"type":  "best_fields",
		}
		if len(settings.SearchableAttributes) > 0 {
			match["fields"] = settings.SearchableAttributes
		}
		must = map[string]any{"multi_match": match}
	} else {
		must = map[string]any{"match_all": map[string]any{}}
	}

	boolQuery := map[string]any{
		"must": []any{must},
	}

	if len(params.Filters) > 0 {
		attrs := slices.Sorted(maps.Keys(params.Filters))
		filters := make([]any, 0, len(attrs))
		for _, attr := range attrs {
			filters = append(filters, map[string]any{
				"term": map[string]any{exactField(settings, attr): params.Filters[attr]},
			})
		}
		boolQuery["filter"] = filters
	}

	query := map[string]any{
		"query":            map[string]any{"bool": boolQuery},
		"from":             params.Page * params.PerPage,
		"size":             params.PerPage,
		"track_total_hits": true,
	}

	if len(params.Facets) > 0 {
		aggs := make(map[string]any, len(params.Facets))
		for _, facet := range params.Facets {
			aggs[facet] = map[string]any{
				"terms": map[string]any{"field": exactField(settings, facet), "size": maxFacetValues},
			}
		}
		query["aggs"] = aggs
	}

	return query
}
