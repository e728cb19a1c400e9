package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval fan-out and fusion Prometheus metrics.
var (
	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "artsearch",
			Name:      "retrieval_duration_seconds",
			Help:      "Per-mode retrieval call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	RetrievalDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "artsearch",
			Name:      "retrieval_degraded_total",
			Help:      "Retrieval calls degraded to empty results after a backend fault",
		},
		[]string{"mode"},
	)

	FusionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "artsearch",
			Name:      "fusion_total",
			Help:      "Hybrid fusions executed by strategy",
		},
		[]string{"strategy"},
	)
)

// RegisterSearchMetrics registers retrieval metrics with the default
// registry. Called explicitly from the composition root (no init()).
func RegisterSearchMetrics() {
	prometheus.MustRegister(
		RetrievalDuration,
		RetrievalDegradedTotal,
		FusionTotal,
	)
}
