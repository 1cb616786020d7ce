package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchLatency  *prometheus.HistogramVec
	dispatchOutcomes *prometheus.CounterVec
	claimConflicts   prometheus.Counter
	activeIncidents  *prometheus.GaugeVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, prometheus.Counter, *prometheus.GaugeVec) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_latency_seconds",
			Help:    "Time from incident report to claimed units",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"domain"},
	)
	out := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Dispatch attempts by outcome",
		},
		[]string{"domain", "outcome"},
	)
	conf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_claim_conflicts_total",
			Help: "Candidate claims lost to a concurrent incident",
		},
	)
	act := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "incidents_active",
			Help: "Incidents not yet in a terminal status",
		},
		[]string{"domain"},
	)
	return lat, out, conf, act
}

func init() {
	dispatchLatency, dispatchOutcomes, claimConflicts, activeIncidents = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchLatency, dispatchOutcomes, claimConflicts, activeIncidents)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchLatency, dispatchOutcomes, claimConflicts, activeIncidents = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
