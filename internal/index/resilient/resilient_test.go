package resilient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
	"github.com/utafrali/searchsync/internal/index/memory"
	"github.com/utafrali/searchsync/pkg/logger"
)

// scriptedClient fails Batch with the queued errors, then delegates to the
// in-memory index.
type scriptedClient struct {
	*memory.Client

	mu    sync.Mutex
	errs  []error
	calls int
	block bool
}

func (s *scriptedClient) Batch(ctx context.Context, t domain.IndexType, upserts []domain.Document, deleteIDs []string) error {
	s.mu.Lock()
	s.calls++
	block := s.block
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return &index.TransportError{Op: "batch", Index: string(t), Err: ctx.Err()}
	}
	if err != nil {
		return err
	}
	return s.Client.Batch(ctx, t, upserts, deleteIDs)
}

func (s *scriptedClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newScripted(errs ...error) *scriptedClient {
	return &scriptedClient{Client: memory.New(), errs: errs}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "test-" + time.Now().Format("150405.000000000")
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 2 * time.Millisecond
	return cfg
}

func unavailable() error {
	return &index.TransportError{Op: "batch", Index: "products", Status: http.StatusServiceUnavailable, Err: errors.New("unavailable")}
}

var docs = []domain.Document{&domain.ProductDocument{ID: "p1"}}

func TestBatch_RetriesTransientFailures(t *testing.T) {
	inner := newScripted(unavailable(), unavailable())
	c := New(inner, fastConfig(), logger.Discard())

	require.NoError(t, c.BatchUpsert(context.Background(), domain.IndexProducts, docs))
	assert.Equal(t, 3, inner.callCount())
	assert.Equal(t, []string{"p1"}, inner.IDs(domain.IndexProducts))
}

func TestBatch_ReturnsLastErrorUnmodified(t *testing.T) {
	last := unavailable()
	inner := newScripted(unavailable(), unavailable(), last)
	cfg := fastConfig()
	cfg.MaxRetries = 2
	c := New(inner, cfg, logger.Discard())

	err := c.BatchUpsert(context.Background(), domain.IndexProducts, docs)
	require.Error(t, err)
	assert.Same(t, last, err)
	assert.Equal(t, 3, inner.callCount())
}

func TestBatch_ClientErrorsAreNotRetried(t *testing.T) {
	rejected := &index.TransportError{Op: "batch", Status: http.StatusBadRequest, Err: errors.New("bad request")}
	inner := newScripted(rejected)
	c := New(inner, fastConfig(), logger.Discard())

	err := c.BatchUpsert(context.Background(), domain.IndexProducts, docs)
	assert.Same(t, rejected, err)
	assert.Equal(t, 1, inner.callCount())
}

func TestBatch_EmptySkipsInner(t *testing.T) {
	inner := newScripted()
	c := New(inner, fastConfig(), logger.Discard())

	require.NoError(t, c.Batch(context.Background(), domain.IndexProducts, nil, nil))
	assert.Zero(t, inner.callCount())
}

func TestBreaker_OpensAfterFailureRatio(t *testing.T) {
	inner := newScripted(unavailable(), unavailable(), unavailable())
	cfg := fastConfig()
	cfg.MaxRetries = 0
	cfg.Breaker.MinRequests = 2
	cfg.Breaker.FailureRatio = 0.5
	c := New(inner, cfg, logger.Discard())
	ctx := context.Background()

	require.Error(t, c.BatchUpsert(ctx, domain.IndexProducts, docs))
	require.Error(t, c.BatchUpsert(ctx, domain.IndexProducts, docs))
	assert.Equal(t, gobreaker.StateOpen, c.State())

	err := c.BatchUpsert(ctx, domain.IndexProducts, docs)
	require.Error(t, err)
	assert.ErrorIs(t, err, index.ErrTransport)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.callCount())
}

func TestBreaker_IgnoresNonTransientErrors(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.Breaker.MinRequests = 1
	c := New(memory.New(), cfg, logger.Discard())

	for range 5 {
		err := c.PartialUpdate(ctx, domain.IndexProducts, "missing", map[string]any{"title": "x"})
		require.ErrorIs(t, err, index.ErrDocumentNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestCallTimeout_BoundsEachAttempt(t *testing.T) {
	inner := newScripted()
	inner.block = true
	cfg := fastConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	c := New(inner, cfg, logger.Discard())

	err := c.BatchUpsert(context.Background(), domain.IndexProducts, docs)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, inner.callCount())
}

func TestWriteRate_WaitsForToken(t *testing.T) {
	inner := newScripted()
	cfg := fastConfig()
	cfg.WriteRate = 0.001
	cfg.WriteBurst = 1
	c := New(inner, cfg, logger.Discard())

	require.NoError(t, c.BatchUpsert(context.Background(), domain.IndexProducts, docs))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.BatchUpsert(ctx, domain.IndexProducts, docs)
	require.Error(t, err)
	assert.Equal(t, 1, inner.callCount())

	_, err = c.Exists(context.Background(), domain.IndexProducts)
	assert.NoError(t, err, "reads are not rate limited")
}

func TestSearchAndExists_Delegate(t *testing.T) {
	inner := memory.New()
	c := New(inner, fastConfig(), logger.Discard())
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, domain.IndexProducts, &domain.ProductDocument{ID: "p1", Title: "Shirt"}))
	ok, err := c.Exists(ctx, domain.IndexProducts)
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := c.Search(ctx, domain.IndexProducts, index.SearchParams{Query: "shirt"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)

	require.NoError(t, c.Delete(ctx, domain.IndexProducts, "p1"))
	assert.Empty(t, inner.IDs(domain.IndexProducts))
	assert.NoError(t, c.Ping(ctx))
}

func TestTransient(t *testing.T) {
	assert.True(t, transient(&index.TransportError{Err: errors.New("dial")}))
	assert.True(t, transient(&index.TransportError{Status: http.StatusTooManyRequests, Err: errors.New("slow down")}))
	assert.True(t, transient(&index.TransportError{Status: http.StatusBadGateway, Err: errors.New("gw")}))
	assert.False(t, transient(&index.TransportError{Status: http.StatusConflict, Err: errors.New("conflict")}))
	assert.False(t, transient(index.ErrDocumentNotFound))
}
