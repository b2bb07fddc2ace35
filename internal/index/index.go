// Package index defines the contract with the remote search index.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/utafrali/searchsync/internal/domain"
)

// Client is the remote search index. Every write is keyed by document ID,
// so repeating a call is safe. Implementations surface failures as-is and
// never retry.
type Client interface {
	// Exists reports whether the index has been created. A missing index is
	// not an error.
	Exists(ctx context.Context, t domain.IndexType) (bool, error)
	// UpdateSettings creates the index when absent and applies settings.
	UpdateSettings(ctx context.Context, t domain.IndexType, settings domain.IndexSettings) error
	// Batch upserts and deletes in one round trip. Deleting an absent
	// document is not an error.
	Batch(ctx context.Context, t domain.IndexType, upserts []domain.Document, deleteIDs []string) error
	BatchUpsert(ctx context.Context, t domain.IndexType, docs []domain.Document) error
	BatchDelete(ctx context.Context, t domain.IndexType, ids []string) error
	Upsert(ctx context.Context, t domain.IndexType, doc domain.Document) error
	Delete(ctx context.Context, t domain.IndexType, id string) error
	// PartialUpdate merges fields into an existing document.
	PartialUpdate(ctx context.Context, t domain.IndexType, id string, fields map[string]any) error
	Search(ctx context.Context, t domain.IndexType, params SearchParams) (*SearchResult, error)
	Ping(ctx context.Context) error
}

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// SearchParams is a read query. Page is zero-based.
type SearchParams struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters,omitempty"`
	Facets  []string          `json:"facets,omitempty"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

// Normalize clamps paging to valid bounds.
func (p SearchParams) Normalize() SearchParams {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// SearchResult is one page of hits. Hits are raw stored documents.
type SearchResult struct {
	Hits             []json.RawMessage           `json:"hits"`
	TotalCount       int                         `json:"total_count"`
	Page             int                         `json:"page"`
	TotalPages       int                         `json:"total_pages"`
	PerPage          int                         `json:"per_page"`
	Facets           map[string]map[string]int64 `json:"facets,omitempty"`
	ProcessingTimeMs int64                       `json:"processing_time_ms"`
	Query            string                      `json:"query"`
}

// TotalPages computes the page count for total hits.
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// Name returns the physical index name for t.
func Name(prefix string, t domain.IndexType) string {
	return prefix + string(t)
}

// ErrTransport matches every failure to reach the index or a non-success
// response from it.
var ErrTransport = errors.New("search index transport failure")

// ErrDocumentNotFound is returned by PartialUpdate for an unknown ID.
var ErrDocumentNotFound = errors.New("document not found")

// TransportError describes a failed index call.
type TransportError struct {
	Op     string
	Index  string
	Status int // HTTP status, zero when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("index %s %s: status %d: %v", e.Op, e.Index, e.Status, e.Err)
	}
	return fmt.Sprintf("index %s %s: %v", e.Op, e.Index, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// DocumentIDs returns the IDs of docs in order.
func DocumentIDs(docs []domain.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.DocumentID()
	}
	return ids
}
