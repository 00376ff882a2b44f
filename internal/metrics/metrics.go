// Package metrics is a thin Prometheus recorder for the two latency signals
// spec.md names explicitly: broadcast outcome labelling (§4.1) and
// transaction landing time (§4.5's TRANSACTION_LANDING_TIME_SVM_METRIC
// reference). Metrics emission is named in spec.md §1 as a thin external
// layer above the core, so this stays deliberately small rather than
// growing into a general observability package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records the auction server's latency metrics.
type Recorder struct {
	broadcastOutcomes *prometheus.CounterVec
	landingTime       *prometheus.HistogramVec
}

// NewRecorder constructs a Recorder and registers its collectors against
// reg. Pass prometheus.NewRegistry() in tests to avoid touching the global
// default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		broadcastOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "express_relay",
			Subsystem: "chain_adapter",
			Name:      "broadcast_outcomes_total",
			Help:      "Count of broadcast retry-loop outcomes by chain and result.",
		}, []string{"chain_id", "outcome"}),
		landingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "express_relay",
			Subsystem: "auction",
			Name:      "transaction_landing_time_seconds",
			Help:      "Time from auction submission to a terminal bid status.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"chain_id", "status"}),
	}
	reg.MustRegister(r.broadcastOutcomes, r.landingTime)
	return r
}

// RecordBroadcastOutcome is called by the chain adapter's retry loop once a
// bid's broadcast reaches success, failed, or expired (§4.1).
func (r *Recorder) RecordBroadcastOutcome(chainID, outcome string) {
	if r == nil {
		return
	}
	r.broadcastOutcomes.WithLabelValues(chainID, outcome).Inc()
}

// RecordLandingTime is called by the auction manager when a bid reaches a
// terminal status.
func (r *Recorder) RecordLandingTime(chainID, status string, submitted time.Time) {
	if r == nil {
		return
	}
	r.landingTime.WithLabelValues(chainID, status).Observe(time.Since(submitted).Seconds())
}
