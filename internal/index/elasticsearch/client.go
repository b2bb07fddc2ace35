// Package elasticsearch implements index.Client on top of the Elasticsearch
// REST API.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
	"github.com/utafrali/searchsync/pkg/httpclient"
)

// Config holds connection settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	// IndexPrefix is prepended to the index type to form the index name.
	IndexPrefix string
	// Refresh is passed to write APIs ("", "true", "wait_for").
	Refresh string
	// Transport overrides the instrumented default transport.
	Transport http.RoundTripper
}

// Client is an Elasticsearch-backed index.Client.
type Client struct {
	es      *elasticsearch.Client
	prefix  string
	refresh string
	logger  *slog.Logger

	mu       sync.RWMutex
	settings map[domain.IndexType]domain.IndexSettings
}

var _ index.Client = (*Client)(nil)

// esBulkItem is one entry of a bulk response, keyed by action name.
type esBulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Result string `json:"result"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type esBulkResponse struct {
	Errors bool                    `json:"errors"`
	Items  []map[string]esBulkItem `json:"items"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

type esSearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key      any   `json:"key"`
			DocCount int64 `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// New creates a client. It does not contact the cluster.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	transport := cfg.Transport
	if transport == nil {
		transport = httpclient.Instrument("elasticsearch",
			httpclient.NewTransport(httpclient.DefaultConfig()), logger)
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: transport,
		// Retry is policy, owned by the resilient wrapper.
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	settings := make(map[domain.IndexType]domain.IndexSettings)
	for _, t := range domain.AllIndexTypes() {
		settings[t] = domain.DefaultSettings(t)
	}

	return &Client{
		es:       es,
		prefix:   cfg.IndexPrefix,
		refresh:  cfg.Refresh,
		logger:   logger,
		settings: settings,
	}, nil
}

// IndexName returns the physical index name of t.
func (c *Client) IndexName(t domain.IndexType) string {
	return index.Name(c.prefix, t)
}

func (c *Client) settingsFor(t domain.IndexType) domain.IndexSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings[t]
}

// responseError converts a non-success response into a TransportError.
func responseError(op, name string, res *esapi.Response) error {
	var errResp esErrorResponse
	body, _ := io.ReadAll(res.Body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Type != "" {
		return &index.TransportError{
			Op:     op,
			Index:  name,
			Status: res.StatusCode,
			Err:    fmt.Errorf("%s: %s", errResp.Error.Type, errResp.Error.Reason),
		}
	}
	return &index.TransportError{
		Op:     op,
		Index:  name,
		Status: res.StatusCode,
		Err:    fmt.Errorf("unexpected status %s", res.Status()),
	}
}

func closeBody(res *esapi.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

func (c *Client) Exists(ctx context.Context, t domain.IndexType) (bool, error) {
	name := c.IndexName(t)
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, &index.TransportError{Op: "exists", Index: name, Err: err}
	}
	defer closeBody(res)

	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, responseError("exists", name, res)
	default:
		return true, nil
	}
}

func (c *Client) UpdateSettings(ctx context.Context, t domain.IndexType, settings domain.IndexSettings) error {
	name := c.IndexName(t)

	exists, err := c.Exists(ctx, t)
	if err != nil {
		return err
	}

	mappings := buildMappings(settings)
	if !exists {
		body, err := json.Marshal(map[string]any{"mappings": mappings})
		if err != nil {
			return fmt.Errorf("elasticsearch create index: marshal mapping: %w", err)
		}
		res, err := c.es.Indices.Create(name,
			c.es.Indices.Create.WithBody(bytes.NewReader(body)),
			c.es.Indices.Create.WithContext(ctx),
		)
		if err != nil {
			return &index.TransportError{Op: "create_index", Index: name, Err: err}
		}
		defer closeBody(res)
		if res.IsError() {
			return responseError("create_index", name, res)
		}
		c.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", name))
	} else {
		body, err := json.Marshal(mappings)
		if err != nil {
			return fmt.Errorf("elasticsearch put mapping: marshal mapping: %w", err)
		}
		res, err := c.es.Indices.PutMapping([]string{name}, bytes.NewReader(body),
			c.es.Indices.PutMapping.WithContext(ctx),
		)
		if err != nil {
			return &index.TransportError{Op: "put_mapping", Index: name, Err: err}
		}
		defer closeBody(res)
		if res.IsError() {
			return responseError("put_mapping", name, res)
		}
		c.logger.InfoContext(ctx, "elasticsearch mapping updated", slog.String("index", name))
	}

	c.mu.Lock()
	c.settings[t] = settings
	c.mu.Unlock()
	return nil
}

// Batch sends one bulk request. Items rejected inside a successful bulk
// response are logged and counted, not returned.
func (c *Client) Batch(ctx context.Context, t domain.IndexType, upserts []domain.Document, deleteIDs []string) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	name := c.IndexName(t)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range upserts {
		action := map[string]any{"index": map[string]any{"_index": name, "_id": doc.DocumentID()}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode document %s: %w", doc.DocumentID(), err)
		}
	}
	for _, id := range deleteIDs {
		action := map[string]any{"delete": map[string]any{"_index": name, "_id": id}}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
	}

	opts := []func(*esapi.BulkRequest){
		c.es.Bulk.WithIndex(name),
		c.es.Bulk.WithContext(ctx),
	}
	if c.refresh != "" {
		opts = append(opts, c.es.Bulk.WithRefresh(c.refresh))
	}

	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()), opts...)
	if err != nil {
		return &index.TransportError{Op: "batch", Index: name, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return responseError("batch", name, res)
	}

	bulkItemsTotal.WithLabelValues(string(t), "index").Add(float64(len(upserts)))
	bulkItemsTotal.WithLabelValues(string(t), "delete").Add(float64(len(deleteIDs)))

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return &index.TransportError{Op: "batch", Index: name, Status: res.StatusCode,
			Err: fmt.Errorf("decode bulk response: %w", err)}
	}
	if bulkResp.Errors {
		c.logItemFailures(ctx, t, name, bulkResp.Items)
	}

	c.logger.DebugContext(ctx, "bulk request applied",
		slog.String("index", name),
		slog.Int("upserted", len(upserts)),
		slog.Int("deleted", len(deleteIDs)),
	)
	return nil
}

func (c *Client) logItemFailures(ctx context.Context, t domain.IndexType, name string, items []map[string]esBulkItem) {
	for _, item := range items {
		for action, result := range item {
			if result.Error == nil {
				continue
			}
			if action == "delete" && result.Status == http.StatusNotFound {
				continue
			}
			bulkItemFailures.WithLabelValues(string(t), action).Inc()
			c.logger.WarnContext(ctx, "bulk item rejected",
				slog.String("index", name),
				slog.String("action", action),
				slog.String("id", result.ID),
				slog.Int("status", result.Status),
				slog.String("error_type", result.Error.Type),
				slog.String("reason", result.Error.Reason),
			)
		}
	}
}

func (c *Client) BatchUpsert(ctx context.Context, t domain.IndexType, docs []domain.Document) error {
	return c.Batch(ctx, t, docs, nil)
}

func (c *Client) BatchDelete(ctx context.Context, t domain.IndexType, ids []string) error {
	return c.Batch(ctx, t, nil, ids)
}

func (c *Client) Upsert(ctx context.Context, t domain.IndexType, doc domain.Document) error {
	name := c.IndexName(t)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	opts := []func(*esapi.IndexRequest){
		c.es.Index.WithDocumentID(doc.DocumentID()),
		c.es.Index.WithContext(ctx),
	}
	if c.refresh != "" {
		opts = append(opts, c.es.Index.WithRefresh(c.refresh))
	}

	res, err := c.es.Index(name, bytes.NewReader(data), opts...)
	if err != nil {
		return &index.TransportError{Op: "upsert", Index: name, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return responseError("upsert", name, res)
	}
	return nil
}

// Delete removes one document. A missing document is not an error.
func (c *Client) Delete(ctx context.Context, t domain.IndexType, id string) error {
	name := c.IndexName(t)
	res, err := c.es.Delete(name, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return &index.TransportError{Op: "delete", Index: name, Err: err}
	}
	defer closeBody(res)
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete", name, res)
	}
	return nil
}

func (c *Client) PartialUpdate(ctx context.Context, t domain.IndexType, id string, fields map[string]any) error {
	name := c.IndexName(t)
	data, err := json.Marshal(map[string]any{"doc": fields})
	if err != nil {
		return fmt.Errorf("elasticsearch update: marshal fields: %w", err)
	}

	res, err := c.es.Update(name, id, bytes.NewReader(data), c.es.Update.WithContext(ctx))
	if err != nil {
		return &index.TransportError{Op: "partial_update", Index: name, Err: err}
	}
	defer closeBody(res)
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("elasticsearch update %s/%s: %w", name, id, index.ErrDocumentNotFound)
	}
	if res.IsError() {
		return responseError("partial_update", name, res)
	}
	return nil
}

func (c *Client) Search(ctx context.Context, t domain.IndexType, params index.SearchParams) (*index.SearchResult, error) {
	name := c.IndexName(t)
	params = params.Normalize()

	data, err := json.Marshal(buildSearchQuery(c.settingsFor(t), params))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithIndex(name),
		c.es.Search.WithBody(bytes.NewReader(data)),
		c.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, &index.TransportError{Op: "search", Index: name, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return nil, responseError("search", name, res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, &index.TransportError{Op: "search", Index: name, Status: res.StatusCode,
			Err: fmt.Errorf("decode search response: %w", err)}
	}

	result := &index.SearchResult{
		Hits:             make([]json.RawMessage, 0, len(esResp.Hits.Hits)),
		TotalCount:       esResp.Hits.Total.Value,
		Page:             params.Page,
		TotalPages:       index.TotalPages(esResp.Hits.Total.Value, params.PerPage),
		PerPage:          params.PerPage,
		ProcessingTimeMs: esResp.Took,
		Query:            params.Query,
	}
	for _, hit := range esResp.Hits.Hits {
		result.Hits = append(result.Hits, hit.Source)
	}
	if len(esResp.Aggregations) > 0 {
		result.Facets = make(map[string]map[string]int64, len(esResp.Aggregations))
		for facet, agg := range esResp.Aggregations {
			counts := make(map[string]int64, len(agg.Buckets))
			for _, b := range agg.Buckets {
				counts[bucketKey(b.Key)] = b.DocCount
			}
			result.Facets[facet] = counts
		}
	}
	return result, nil
}

func bucketKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	default:
		return fmt.Sprint(k)
	}
}

// Ping checks whether the cluster is reachable.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return &index.TransportError{Op: "ping", Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return responseError("ping", "", res)
	}
	return nil
}

