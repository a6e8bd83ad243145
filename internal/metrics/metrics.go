package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nanobanana",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nanobanana",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method", "endpoint"},
	)

	// Provider attempts, labelled by how each attempt ended
	ProviderAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nanobanana",
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Total provider calls made while generating images",
		},
		[]string{"outcome"},
	)

	ProviderAttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nanobanana",
			Subsystem: "provider",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of a single provider call in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nanobanana",
			Subsystem: "generation",
			Name:      "results_total",
			Help:      "Total generation requests by final result",
		},
		[]string{"result"},
	)

	GenerationAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nanobanana",
			Subsystem: "generation",
			Name:      "attempts",
			Help:      "Number of provider calls needed per generation request",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nanobanana",
			Subsystem: "provider",
			Name:      "health_checks_total",
			Help:      "Total provider health probes",
		},
		[]string{"status"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordAttempt records one provider call
func RecordAttempt(outcome string, durationSec float64) {
	ProviderAttemptsTotal.WithLabelValues(outcome).Inc()
	ProviderAttemptDuration.Observe(durationSec)
}

// RecordGeneration records the final result of a generation request
func RecordGeneration(result string, attempts int) {
	GenerationsTotal.WithLabelValues(result).Inc()
	if attempts > 0 {
		GenerationAttempts.Observe(float64(attempts))
	}
}

// RecordHealthCheck records a provider health probe
func RecordHealthCheck(healthy bool) {
	status := "unhealthy"
	if healthy {
		status = "healthy"
	}
	HealthChecksTotal.WithLabelValues(status).Inc()
}
