package elasticsearch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bulkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_index_bulk_items_total",
			Help: "Bulk actions sent to Elasticsearch, by index and action",
		},
		[]string{"index", "action"},
	)

	bulkItemFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_index_bulk_item_failures_total",
			Help: "Bulk actions rejected by Elasticsearch inside a successful bulk response",
		},
		[]string{"index", "action"},
	)
)
