package completion

import "github.com/prometheus/client_golang/prometheus"

var (
	attemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "completion",
		Name:      "attempts_total",
		Help:      "Completion API attempts grouped by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	fallbackCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "completion",
		Name:      "fallback_total",
		Help:      "Number of requests routed to the fallback endpoint after primary exhaustion.",
	})

	backoffHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recommendation_service",
		Subsystem: "completion",
		Name:      "backoff_seconds",
		Help:      "Delay applied before retrying a transient completion failure.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(attemptCounter, fallbackCounter, backoffHistogram)
}

func recordAttempt(endpoint, outcome string) {
	attemptCounter.WithLabelValues(endpoint, outcome).Inc()
}
