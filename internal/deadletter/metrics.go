package deadletter

import "github.com/prometheus/client_golang/prometheus"

var (
	writtenCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "written_total",
		Help:      "Number of activities queued for regeneration.",
	})

	recoveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "recovered_total",
		Help:      "Number of queued activities regenerated from the model.",
	})

	retryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Number of times a queued activity was scheduled for a future retry.",
	})

	quarantinedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "quarantined_total",
		Help:      "Number of queued activities quarantined after exhausting retries.",
	})

	backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "queued_activities",
		Help:      "Current number of non-quarantined entries in the dead letter.",
	})
)

func init() {
	prometheus.MustRegister(writtenCounter, recoveredCounter, retryCounter, quarantinedCounter, backlogGauge)
}

func recordWritten()        { writtenCounter.Inc() }
func recordRecovered()      { recoveredCounter.Inc() }
func recordRetryScheduled() { retryCounter.Inc() }
func recordQuarantined()    { quarantinedCounter.Inc() }
