package httpclient

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config holds outbound HTTP transport configuration.
type Config struct {
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
}

// DefaultConfig returns sensible defaults for a long-lived client.
func DefaultConfig() Config {
	return Config{
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewTransport builds a pooled transport.
func NewTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

var (
	outboundRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_requests_total",
			Help: "Total number of outbound HTTP requests",
		},
		[]string{"client", "method", "status"},
	)

	outboundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_request_duration_seconds",
			Help:    "Outbound HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"client", "method"},
	)
)

// instrumented is a RoundTripper recording metrics and debug logs for each
// outbound request. It never retries.
type instrumented struct {
	name   string
	next   http.RoundTripper
	logger *slog.Logger
}

// Instrument wraps next so every request is counted and timed under name.
// A nil next means http.DefaultTransport.
func Instrument(name string, next http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumented{name: name, next: next, logger: logger}
}

func (t *instrumented) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	outboundRequests.WithLabelValues(t.name, req.Method, status).Inc()
	outboundDuration.WithLabelValues(t.name, req.Method).Observe(elapsed.Seconds())

	if t.logger != nil {
		attrs := []any{
			slog.String("client", t.name),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("status", status),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		t.logger.DebugContext(req.Context(), "outbound request", attrs...)
	}

	return resp, err
}
