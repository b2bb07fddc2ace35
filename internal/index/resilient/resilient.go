// Package resilient wraps an index.Client with an explicit call policy:
// per-attempt timeout, exponential backoff retries, a circuit breaker and an
// optional write rate limit.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
)

// Config holds the policy. Zero values disable the matching feature.
type Config struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// CallTimeout bounds each attempt.
	CallTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// WriteRate limits write calls per second. WriteBurst defaults to 1.
	WriteRate  float64
	WriteBurst int

	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed in the half-open state.
	MaxRequests uint32
	// Interval clears counts in the closed state. 0 never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns the policy used when INDEX_POLICY_ENABLED is set.
func DefaultConfig() Config {
	return Config{
		Name:            "search-index",
		CallTimeout:     10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:  1,
			Interval:     60 * time.Second,
			Timeout:      30 * time.Second,
			FailureRatio: 0.5,
			MinRequests:  5,
		},
	}
}

// Client applies the policy around another index.Client.
type Client struct {
	next    index.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ index.Client = (*Client)(nil)

// New wraps next.
func New(next index.Client, cfg Config, logger *slog.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "search-index"
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.Breaker.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.Breaker.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)

	c := &Client{
		next:    next,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		logger:  logger,
	}
	if cfg.WriteRate > 0 {
		burst := max(cfg.WriteBurst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.WriteRate), burst)
	}
	return c
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// transient reports whether err is worth retrying: a transport failure with
// no response, a 5xx or a 429.
func transient(err error) bool {
	var te *index.TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.Status == 0 || te.Status >= http.StatusInternalServerError || te.Status == http.StatusTooManyRequests
}

func (c *Client) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.cfg.InitialInterval > 0 {
		b.InitialInterval = c.cfg.InitialInterval
	}
	if c.cfg.MaxInterval > 0 {
		b.MaxInterval = c.cfg.MaxInterval
	}
	return b
}

// do runs fn under the policy. The error of the last attempt is returned
// as-is so callers see the same value the wrapped client produced.
func (c *Client) do(ctx context.Context, op string, t domain.IndexType, write bool, fn func(ctx context.Context) error) error {
	attempt := func() (struct{}, error) {
		if write && c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
		}

		_, err := c.breaker.Execute(func() (struct{}, error) {
			actx := ctx
			if c.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
				defer cancel()
			}
			return struct{}{}, fn(actx)
		})
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			rejectedTotal.WithLabelValues(op).Inc()
			return struct{}{}, backoff.Permanent(&index.TransportError{Op: op, Index: string(t), Err: err})
		case !transient(err):
			return struct{}{}, backoff.Permanent(err)
		default:
			return struct{}{}, err
		}
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			retriesTotal.WithLabelValues(op).Inc()
			c.logger.WarnContext(ctx, "index call failed, retrying",
				slog.String("op", op),
				slog.String("index_type", string(t)),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	return err
}

func (c *Client) Exists(ctx context.Context, t domain.IndexType) (bool, error) {
	var exists bool
	err := c.do(ctx, "exists", t, false, func(ctx context.Context) error {
		var err error
		exists, err = c.next.Exists(ctx, t)
		return err
	})
	return exists, err
}

func (c *Client) UpdateSettings(ctx context.Context, t domain.IndexType, settings domain.IndexSettings) error {
	return c.do(ctx, "update_settings", t, true, func(ctx context.Context) error {
		return c.next.UpdateSettings(ctx, t, settings)
	})
}

func (c *Client) Batch(ctx context.Context, t domain.IndexType, upserts []domain.Document, deleteIDs []string) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	return c.do(ctx, "batch", t, true, func(ctx context.Context) error {
		return c.next.Batch(ctx, t, upserts, deleteIDs)
	})
}

func (c *Client) BatchUpsert(ctx context.Context, t domain.IndexType, docs []domain.Document) error {
	return c.Batch(ctx, t, docs, nil)
}

func (c *Client) BatchDelete(ctx context.Context, t domain.IndexType, ids []string) error {
	return c.Batch(ctx, t, nil, ids)
}

func (c *Client) Upsert(ctx context.Context, t domain.IndexType, doc domain.Document) error {
	return c.do(ctx, "upsert", t, true, func(ctx context.Context) error {
		return c.next.Upsert(ctx, t, doc)
	})
}

func (c *Client) Delete(ctx context.Context, t domain.IndexType, id string) error {
	return c.do(ctx, "delete", t, true, func(ctx context.Context) error {
		return c.next.Delete(ctx, t, id)
	})
}

func (c *Client) PartialUpdate(ctx context.Context, t domain.IndexType, id string, fields map[string]any) error {
	return c.do(ctx, "partial_update", t, true, func(ctx context.Context) error {
		return c.next.PartialUpdate(ctx, t, id, fields)
	})
}

func (c *Client) Search(ctx context.Context, t domain.IndexType, params index.SearchParams) (*index.SearchResult, error) {
	var result *index.SearchResult
	err := c.do(ctx, "search", t, false, func(ctx context.Context) error {
		var err error
		result, err = c.next.Search(ctx, t, params)
		return err
	})
	return result, err
}

// Ping bypasses retries so health checks report the current state.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	return c.next.Ping(ctx)
}
