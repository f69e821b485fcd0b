package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// saveTotal counts save requests by outcome (skipped, ok, error)
	saveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_persist_save_total",
		Help: "Save requests by outcome",
	}, []string{"result"})

	// saveDuration tracks backing-store write latency
	saveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbor_persist_save_duration_seconds",
		Help:    "SaveNodes latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	// presenceErrors counts failed heartbeat, roster and removal calls
	presenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_persist_presence_errors_total",
		Help: "Failed presence calls by operation",
	}, []string{"operation"})
)
