package synthesis

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	errMissingText    = errors.New("completion envelope has no candidate text")
	errInvalidPayload = errors.New("model output is not valid JSON")
)

var resultCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "recommendation_service",
	Subsystem: "synthesis",
	Name:      "results_total",
	Help:      "Recommendations produced, labeled by whether they came from the model or a default.",
}, []string{"source"})

func init() {
	prometheus.MustRegister(resultCounter)
}

func recordResult(source Source) {
	resultCounter.WithLabelValues(string(source)).Inc()
}
