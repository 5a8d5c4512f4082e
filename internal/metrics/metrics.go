package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for monitoring service health and performance
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)

	// outcome: unauthorized, invalid, predicted, prediction_failed, contract_error, timeout
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "water_submissions_total",
			Help: "Water sample submissions by terminal pipeline outcome",
		},
		[]string{"outcome"},
	)

	PredictionInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prediction_invocations_total",
			Help: "External model invocations by result",
		},
		[]string{"result"},
	)

	PredictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prediction_duration_seconds",
			Help:    "Wall time of external model invocations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	PersistenceWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_writes_total",
			Help: "Post-response water test writes by result",
		},
		[]string{"result"},
	)

	PersistenceQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "persistence_queue_depth",
			Help: "Records waiting for a persistence worker",
		},
	)

	PersistenceDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "persistence_dropped_total",
			Help: "Records dropped because the persistence queue was full or closed",
		},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			SubmissionsTotal,
			PredictionInvocationsTotal,
			PredictionDuration,
			PersistenceWritesTotal,
			PersistenceQueueDepth,
			PersistenceDroppedTotal,
		)
	})
}
