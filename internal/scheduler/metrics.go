package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// queueDepth is only written from the worker goroutine that owns the queue.
var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relic",
			Subsystem: "scheduler",
			Name:      "submissions_total",
			Help:      "Tasks accepted onto a worker queue.",
		},
		[]string{"worker"},
	)

	queueFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relic",
			Subsystem: "scheduler",
			Name:      "queue_full_total",
			Help:      "Enqueue attempts that timed out on a full worker queue.",
		},
		[]string{"worker"},
	)

	droppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relic",
			Subsystem: "scheduler",
			Name:      "dropped_total",
			Help:      "Tasks dropped before running, by reason.",
		},
		[]string{"reason"},
	)

	panicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relic",
			Subsystem: "scheduler",
			Name:      "panics_total",
			Help:      "Task invocations that panicked.",
		},
		[]string{"worker"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relic",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Task execution latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relic",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Current depth of each worker queue.",
		},
		[]string{"worker"},
	)
)
