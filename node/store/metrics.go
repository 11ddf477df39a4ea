package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fluux",
			Subsystem: "message_cache",
			Name:      "operations_total",
			Help:      "Total number of message cache operations",
		},
		// collection: messages/room-messages, status: success/error
		[]string{"collection", "operation", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fluux",
			Subsystem: "message_cache",
			Name:      "operation_duration_seconds",
			Help:      "Time taken by message cache operations",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"collection", "operation"},
	)

	recordCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fluux",
			Subsystem: "message_cache",
			Name:      "record_cache_hits_total",
			Help:      "Point lookups served from the in-memory record cache",
		},
		[]string{"collection"},
	)

	bufferFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fluux",
			Subsystem: "write_buffer",
			Name:      "flush_size",
			Help:      "Number of room messages written per flush",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	bufferDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fluux",
			Subsystem: "write_buffer",
			Name:      "dropped_records_total",
			Help:      "Room messages dropped because their flush failed",
		},
	)

	degradedOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fluux",
			Subsystem: "message_cache",
			Name:      "degraded_operations_total",
			Help:      "Operations skipped because storage is unavailable",
		},
		[]string{"operation"},
	)
)

func observeOperation(
	collection string,
	operation string,
	start time.Time,
	err error,
) {
	status := "success"
	if err != nil {
		status = "error"
	}
	storeOperationsTotal.WithLabelValues(collection, operation, status).Inc()
	storeOperationDuration.WithLabelValues(collection, operation).Observe(
		time.Since(start).Seconds(),
	)
}
