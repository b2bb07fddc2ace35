package resilient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "search_sync_index_breaker_state",
			Help: "Circuit breaker state of the index client (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_index_retries_total",
			Help: "Index calls retried after a transient failure",
		},
		[]string{"op"},
	)

	rejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_index_breaker_rejected_total",
			Help: "Index calls rejected by an open circuit breaker",
		},
		[]string{"op"},
	)
)
