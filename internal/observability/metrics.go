// Package observability holds process-wide gauges and counters shared by the
// storage, cache and dead-letter layers.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recommendationSavedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "persistence",
		Name:      "last_recommendation_saved_timestamp_seconds",
		Help:      "Unix timestamp of the most recent recommendation persisted to Postgres.",
	})
	recommendationRegeneratedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "persistence",
		Name:      "last_recommendation_regenerated_timestamp_seconds",
		Help:      "Unix timestamp of the most recent default recommendation replaced from the dead letter.",
	})
	cacheLookupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Read-through cache lookups by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(recommendationSavedGauge, recommendationRegeneratedGauge, cacheLookupCounter)
}

// RecordRecommendationSaved updates the persistence watermark gauge.
func RecordRecommendationSaved(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recommendationSavedGauge.Set(float64(ts.Unix()))
}

// RecordRecommendationRegenerated updates the regeneration watermark gauge.
func RecordRecommendationRegenerated(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recommendationRegeneratedGauge.Set(float64(ts.Unix()))
}

// RecordCacheLookup counts a cache hit, miss or error.
func RecordCacheLookup(result string) {
	cacheLookupCounter.WithLabelValues(result).Inc()
}
