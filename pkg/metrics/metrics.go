// Package metrics provides Prometheus metrics for the clover loader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoadRunsTotal tracks ETL runs by load type and terminal status
	LoadRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "load",
			Name:      "runs_total",
			Help:      "Total number of ETL runs by load type and status",
		},
		[]string{"load_type", "status"},
	)

	// LoadRunDuration tracks run duration in seconds
	LoadRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "load",
			Name:      "run_duration_seconds",
			Help:      "Duration of ETL runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"load_type"},
	)

	// StudiesProcessed tracks studies by validation outcome
	StudiesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "load",
			Name:      "studies_total",
			Help:      "Total number of studies processed by outcome",
		},
		[]string{"outcome"},
	)

	// RowsMerged tracks rows merged into each target table
	RowsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "load",
			Name:      "rows_merged_total",
			Help:      "Total number of rows merged into target tables",
		},
		[]string{"table"},
	)

	// DLQEntriesTotal tracks records routed to the dead letter queue
	DLQEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "load",
			Name:      "dlq_entries_total",
			Help:      "Total number of records routed to the dead letter queue",
		},
	)

	// APIRequestsTotal tracks requests against the ClinicalTrials.gov API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of requests against the study API",
		},
		[]string{"status_code"},
	)

	// APIRequestDuration tracks API request duration
	APIRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of study API requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// APIRetriesTotal tracks page fetches that were retried
	APIRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "Total number of retried study API requests",
		},
	)
)
