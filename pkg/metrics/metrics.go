package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VerifyTotal counts /verify outcomes by scheme, network and result.
	VerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facilitator",
		Name:      "verify_total",
		Help:      "Payment verification outcomes",
	}, []string{"scheme", "network", "result"})

	// SettleTotal counts /settle outcomes by scheme, network and result.
	SettleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facilitator",
		Name:      "settle_total",
		Help:      "Payment settlement outcomes",
	}, []string{"scheme", "network", "result"})

	// BridgeJobTransitions counts bridge job state transitions.
	BridgeJobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facilitator",
		Name:      "bridge_job_transitions_total",
		Help:      "Bridge job state transitions",
	}, []string{"from", "to"})

	// BridgeJobsInFlight tracks jobs currently being processed.
	BridgeJobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facilitator",
		Name:      "bridge_jobs_in_flight",
		Help:      "Bridge jobs with an active processing attempt",
	})

	// BridgeAttemptDuration observes bridge attempt latency per source network.
	BridgeAttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facilitator",
		Name:      "bridge_attempt_seconds",
		Help:      "Duration of bridge attempts",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"source_network"})
)

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
