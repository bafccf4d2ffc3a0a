// Package observability provides Prometheus metrics for monitoring the
// cadbridge execution bridge.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ExecBuckets defines histogram buckets suited for interactive code
// execution latencies, ranging from 1ms to 60s.
var ExecBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}

var (
	// RequestsTotal counts executed requests by frontend and outcome.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadbridge_requests_total",
			Help: "Total execution requests",
		},
		[]string{"frontend", "status"},
	)

	// ExecutionDuration records wall-clock execution time of drained
	// requests in seconds.
	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadbridge_execution_duration_seconds",
			Help:    "Execution duration",
			Buckets: ExecBuckets,
		},
	)

	// QueueDepth tracks the number of requests waiting in the dispatch queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadbridge_queue_depth",
			Help: "Pending requests in the dispatch queue",
		},
	)

	// ConnectionsActive tracks open client connections by frontend.
	ConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadbridge_connections_active",
			Help: "Active client connections",
		},
		[]string{"frontend"},
	)

	// TimeoutsTotal counts caller-visible timeouts by frontend. A timeout
	// does not cancel the queued request; it only affects the reply.
	TimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadbridge_timeouts_total",
			Help: "Requests that timed out from the caller's perspective",
		},
		[]string{"frontend"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		ExecutionDuration,
		QueueDepth,
		ConnectionsActive,
		TimeoutsTotal,
	)
}
