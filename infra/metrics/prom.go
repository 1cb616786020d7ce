package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/resqroute/core/metrics"
)

// PromSink records dispatch, transition and corridor events in Prometheus metrics.
type PromSink struct {
	dispatches  *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	corridors   *prometheus.CounterVec
	signals     *prometheus.HistogramVec
	lifetime    prometheus.Histogram
}

// NewPromSink registers sink metrics on the default Prometheus registerer.
// The HTTP endpoint is served separately by StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_events_total",
			Help: "Dispatch attempts recorded by the sink",
		}, []string{"domain", "severity", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_event_conflicts_total",
			Help: "Claims lost during recorded dispatch attempts",
		}, []string{"domain"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_transitions_total",
			Help: "Incident status changes",
		}, []string{"domain", "to"}),
		corridors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_events_total",
			Help: "Corridor lifecycle steps",
		}, []string{"kind", "reason"}),
		signals: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corridor_signals",
			Help:    "Signals held and denied when a corridor is created",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}, []string{"state"}),
		lifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "corridor_lifetime_seconds",
			Help:    "Time from corridor creation to clearance",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800},
		}),
	}
	var err error
	if s.dispatches, err = register(reg, s.dispatches); err != nil {
		return nil, err
	}
	if s.conflicts, err = register(reg, s.conflicts); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, s.transitions); err != nil {
		return nil, err
	}
	if s.corridors, err = register(reg, s.corridors); err != nil {
		return nil, err
	}
	if s.signals, err = register(reg, s.signals); err != nil {
		return nil, err
	}
	if s.lifetime, err = register(reg, s.lifetime); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the collector already registered under the same
// descriptor, so two sinks on one registry share their series.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	s.dispatches.WithLabelValues(ev.Domain, ev.Severity, ev.Outcome).Inc()
	if ev.Conflicts > 0 {
		s.conflicts.WithLabelValues(ev.Domain).Add(float64(ev.Conflicts))
	}
	return nil
}

func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.transitions.WithLabelValues(ev.Domain, ev.To).Inc()
	return nil
}

func (s *PromSink) RecordCorridor(ev coremetrics.CorridorEvent) error {
	s.corridors.WithLabelValues(ev.Kind, ev.Reason).Inc()
	switch ev.Kind {
	case coremetrics.CorridorCreated:
		s.signals.WithLabelValues("held").Observe(float64(ev.Signals))
		s.signals.WithLabelValues("denied").Observe(float64(ev.Denied))
	case coremetrics.CorridorCleared:
		if ev.Lifetime > 0 {
			s.lifetime.Observe(ev.Lifetime.Seconds())
		}
	}
	return nil
}
