// Package memory is an in-process index.Client used for local development
// and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
)

// Call records one write against the client.
type Call struct {
	Op        string
	IndexType domain.IndexType
	UpsertIDs []string
	DeleteIDs []string
}

type store struct {
	settings domain.IndexSettings
	docs     map[string]map[string]any
}

// Client keeps documents as decoded JSON objects, so reads observe exactly
// what a remote index would have stored.
type Client struct {
	mu      sync.RWMutex
	indexes map[domain.IndexType]*store
	calls   []Call
	failErr error
}

var _ index.Client = (*Client)(nil)

// New creates an empty client. No index exists until it is written to.
func New() *Client {
	return &Client{indexes: make(map[domain.IndexType]*store)}
}

// FailWith makes every subsequent call fail with a transport error wrapping
// err. A nil err restores normal behaviour.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failErr = err
}

// Calls returns the writes made so far.
func (c *Client) Calls() []Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.calls)
}

// Document returns the stored document as JSON.
func (c *Client) Document(t domain.IndexType, id string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.indexes[t]
	if !ok {
		return nil, false
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	raw, _ := json.Marshal(doc)
	return raw, true
}

// IDs returns the stored document IDs of t, sorted.
func (c *Client) IDs(t domain.IndexType) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.indexes[t]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(s.docs))
}

// Settings returns the settings applied to t.
func (c *Client) Settings(t domain.IndexType) (domain.IndexSettings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.indexes[t]
	if !ok {
		return domain.IndexSettings{}, false
	}
	return s.settings, true
}

func (c *Client) failure(op string, t domain.IndexType) error {
	if c.failErr == nil {
		return nil
	}
	return &index.TransportError{Op: op, Index: string(t), Err: c.failErr}
}

// storeFor returns the store of t, creating it on first write.
func (c *Client) storeFor(t domain.IndexType) *store {
	s, ok := c.indexes[t]
	if !ok {
		s = &store{docs: make(map[string]map[string]any)}
		c.indexes[t] = s
	}
	return s
}

func toObject(doc domain.Document) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", doc.DocumentID(), err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", doc.DocumentID(), err)
	}
	return obj, nil
}

func (c *Client) Exists(_ context.Context, t domain.IndexType) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("exists", t); err != nil {
		return false, err
	}
	_, ok := c.indexes[t]
	return ok, nil
}

func (c *Client) UpdateSettings(_ context.Context, t domain.IndexType, settings domain.IndexSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("update_settings", t); err != nil {
		return err
	}
	c.storeFor(t).settings = settings
	c.calls = append(c.calls, Call{Op: "update_settings", IndexType: t})
	return nil
}

func (c *Client) Batch(_ context.Context, t domain.IndexType, upserts []domain.Document, deleteIDs []string) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}

	objs := make([]map[string]any, len(upserts))
	for i, d := range upserts {
		obj, err := toObject(d)
		if err != nil {
			return err
		}
		objs[i] = obj
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{
		Op:        "batch",
		IndexType: t,
		UpsertIDs: index.DocumentIDs(upserts),
		DeleteIDs: slices.Clone(deleteIDs),
	})
	if err := c.failure("batch", t); err != nil {
		return err
	}

	s := c.storeFor(t)
	for i, d := range upserts {
		s.docs[d.DocumentID()] = objs[i]
	}
	for _, id := range deleteIDs {
		delete(s.docs, id)
	}
	return nil
}

func (c *Client) BatchUpsert(ctx context.Context, t domain.IndexType, docs []domain.Document) error {
	return c.Batch(ctx, t, docs, nil)
}

func (c *Client) BatchDelete(ctx context.Context, t domain.IndexType, ids []string) error {
	return c.Batch(ctx, t, nil, ids)
}

func (c *Client) Upsert(ctx context.Context, t domain.IndexType, doc domain.Document) error {
	return c.Batch(ctx, t, []domain.Document{doc}, nil)
}

func (c *Client) Delete(ctx context.Context, t domain.IndexType, id string) error {
	return c.Batch(ctx, t, nil, []string{id})
}

func (c *Client) PartialUpdate(_ context.Context, t domain.IndexType, id string, fields map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("partial_update", t); err != nil {
		return err
	}
	s, ok := c.indexes[t]
	if !ok {
		return fmt.Errorf("partial update %s/%s: %w", t, id, index.ErrDocumentNotFound)
	}
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("partial update %s/%s: %w", t, id, index.ErrDocumentNotFound)
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	maps.Copy(doc, patch)
	c.calls = append(c.calls, Call{Op: "partial_update", IndexType: t, UpsertIDs: []string{id}})
	return nil
}

func (c *Client) Search(_ context.Context, t domain.IndexType, params index.SearchParams) (*index.SearchResult, error) {
	start := time.Now()
	params = params.Normalize()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.failure("search", t); err != nil {
		return nil, err
	}

	result := &index.SearchResult{
		Hits:    []json.RawMessage{},
		Page:    params.Page,
		PerPage: params.PerPage,
		Query:   params.Query,
	}

	s, ok := c.indexes[t]
	if !ok {
		return result, nil
	}

	searchable := s.settings.SearchableAttributes
	if len(searchable) == 0 {
		searchable = nil
	}
	q := strings.ToLower(strings.TrimSpace(params.Query))

	var matched []string
	for _, id := range slices.Sorted(maps.Keys(s.docs)) {
		doc := s.docs[id]
		if q != "" && !matchesQuery(doc, searchable, q) {
			continue
		}
		if !matchesFilters(doc, params.Filters) {
			continue
		}
		matched = append(matched, id)
	}

	if len(params.Facets) > 0 {
		result.Facets = make(map[string]map[string]int64, len(params.Facets))
		for _, facet := range params.Facets {
			counts := make(map[string]int64)
			for _, id := range matched {
				for _, v := range values(s.docs[id], facet) {
					counts[v]++
				}
			}
			result.Facets[facet] = counts
		}
	}

	result.TotalCount = len(matched)
	result.TotalPages = index.TotalPages(len(matched), params.PerPage)

	from := min(params.Page*params.PerPage, len(matched))
	to := min(from+params.PerPage, len(matched))
	for _, id := range matched[from:to] {
		raw, err := json.Marshal(s.docs[id])
		if err != nil {
			return nil, fmt.Errorf("marshal hit %s: %w", id, err)
		}
		result.Hits = append(result.Hits, raw)
	}
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

func (c *Client) Ping(context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failure("ping", "")
}

// matchesQuery does a case-insensitive substring match over the searchable
// attributes, or over every string value when none are configured.
func matchesQuery(doc map[string]any, attrs []string, q string) bool {
	if attrs == nil {
		for _, v := range allStrings(doc) {
			if strings.Contains(strings.ToLower(v), q) {
				return true
			}
		}
		return false
	}
	for _, attr := range attrs {
		for _, v := range values(doc, attr) {
			if strings.Contains(strings.ToLower(v), q) {
				return true
			}
		}
	}
	return false
}

func matchesFilters(doc map[string]any, filters map[string]string) bool {
	for attr, want := range filters {
		if !slices.Contains(values(doc, attr), want) {
			return false
		}
	}
	return true
}

// values resolves a dotted path, fanning out through arrays, and returns the
// scalar leaves as strings.
func values(v any, path string) []string {
	if path == "" {
		return scalars(v)
	}
	head, rest, _ := strings.Cut(path, ".")
	switch node := v.(type) {
	case map[string]any:
		child, ok := node[head]
		if !ok {
			return nil
		}
		return values(child, rest)
	case []any:
		var out []string
		for _, item := range node {
			out = append(out, values(item, path)...)
		}
		return out
	default:
		return nil
	}
}

func scalars(v any) []string {
	switch node := v.(type) {
	case nil:
		return nil
	case string:
		return []string{node}
	case []any:
		var out []string
		for _, item := range node {
			out = append(out, scalars(item)...)
		}
		return out
	case map[string]any:
		return nil
	default:
		return []string{fmt.Sprint(node)}
	}
}

func allStrings(v any) []string {
	switch node := v.(type) {
	case string:
		return []string{node}
	case []any:
		var out []string
		for _, item := range node {
			out = append(out, allStrings(item)...)
		}
		return out
	case map[string]any:
		var out []string
		for _, child := range node {
			out = append(out, allStrings(child)...)
		}
		return out
	default:
		return nil
	}
}
