package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fluux",
			Subsystem: "archive_sync",
			Name:      "passes_total",
			Help:      "Total number of archive sync passes",
		},
		[]string{"kind"},
	)

	syncTargetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fluux",
			Subsystem: "archive_sync",
			Name:      "targets_total",
			Help:      "Archive sync targets by terminal state",
		},
		// state: completed/failed/skipped/cached
		[]string{"kind", "state"},
	)

	queriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fluux",
			Subsystem: "archive_sync",
			Name:      "queries_in_flight",
			Help:      "Archive queries currently awaiting completion",
		},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fluux",
			Subsystem: "archive_sync",
			Name:      "query_duration_seconds",
			Help:      "Time from issuing an archive query to its completion",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	uncorrelatedResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fluux",
			Subsystem: "archive_sync",
			Name:      "uncorrelated_results_total",
			Help:      "Forwarded results whose query id matched no pending query",
		},
	)
)
