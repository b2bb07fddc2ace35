package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_documents_upserted_total",
			Help: "Documents written to the search index",
		},
		[]string{"index_type"},
	)

	documentsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_documents_deleted_total",
			Help: "Document deletions sent to the search index",
		},
		[]string{"index_type"},
	)

	fullSyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_full_sync_runs_total",
			Help: "Full sync runs by index type and outcome",
		},
		[]string{"index_type", "status"},
	)

	fullSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_sync_full_sync_duration_seconds",
			Help:    "Wall time of a full sync, excluding asynchronous event handling",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"index_type"},
	)

	handlerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_handler_calls_total",
			Help: "Sync handler invocations by handler and outcome",
		},
		[]string{"handler", "status"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
