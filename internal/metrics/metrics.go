package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RemoteRequests counts calls to the school service by operation and outcome.
	RemoteRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classdesk",
		Name:      "remote_requests_total",
		Help:      "Requests sent to the school attendance service.",
	}, []string{"op", "outcome"})

	// RemoteLatency observes round-trip time to the school service.
	RemoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classdesk",
		Name:      "remote_request_seconds",
		Help:      "Latency of school attendance service requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// StaleResponses counts fetch results dropped because a newer one won.
	StaleResponses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "classdesk",
		Name:      "stale_responses_total",
		Help:      "Attendance fetches discarded after being overtaken.",
	})

	Submits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classdesk",
		Name:      "submits_total",
		Help:      "Attendance submissions by outcome.",
	}, []string{"outcome"})

	Exports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classdesk",
		Name:      "exports_total",
		Help:      "Spreadsheet exports by mode and outcome.",
	}, []string{"mode", "outcome"})

	OpenDesks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "classdesk",
		Name:      "open_desks",
		Help:      "Desks currently held in memory.",
	})
)

func init() {
	prometheus.MustRegister(RemoteRequests, RemoteLatency, StaleResponses, Submits, Exports, OpenDesks)
}
