package metrics

import "time"

// Dispatch outcomes.
const (
	OutcomeAssigned   = "assigned"
	OutcomeNoResource = "no_resource"
	OutcomeError      = "error"
)

// DispatchEvent is recorded once per dispatch attempt.
type DispatchEvent struct {
	IncidentID string
	Domain     string
	Severity   string
	Outcome    string
	Units      []string
	Conflicts  int
	Latency    time.Duration
	Time       time.Time
}

// DispatchRecorder records dispatch attempts.
type DispatchRecorder interface {
	RecordDispatch(ev DispatchEvent) error
}

// TransitionEvent is an incident status change.
type TransitionEvent struct {
	IncidentID string
	Domain     string
	From       string
	To         string
	Time       time.Time
}

// TransitionRecorder records incident status changes.
type TransitionRecorder interface {
	RecordTransition(ev TransitionEvent) error
}

// Corridor event kinds.
const (
	CorridorCreated   = "created"
	CorridorRefreshed = "refreshed"
	CorridorCleared   = "cleared"
)

// CorridorEvent describes a corridor lifecycle step.
type CorridorEvent struct {
	CorridorID string
	VehicleID  string
	Kind       string
	Reason     string
	Signals    int
	Denied     int
	Lifetime   time.Duration
	Time       time.Time
}

// CorridorRecorder records corridor lifecycle steps.
type CorridorRecorder interface {
	RecordCorridor(ev CorridorEvent) error
}

// MetricsSink records every event kind.
type MetricsSink interface {
	DispatchRecorder
	TransitionRecorder
	CorridorRecorder
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchEvent) error     { return nil }
func (NopSink) RecordTransition(TransitionEvent) error { return nil }
func (NopSink) RecordCorridor(CorridorEvent) error     { return nil }

// MultiSink fans events out to several sinks. The first error wins but every
// sink still receives the event.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) each(fn func(MetricsSink) error) error {
	var first error
	for _, s := range m.Sinks {
		if err := fn(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) RecordDispatch(ev DispatchEvent) error {
	return m.each(func(s MetricsSink) error { return s.RecordDispatch(ev) })
}

func (m *MultiSink) RecordTransition(ev TransitionEvent) error {
	return m.each(func(s MetricsSink) error { return s.RecordTransition(ev) })
}

func (m *MultiSink) RecordCorridor(ev CorridorEvent) error {
	return m.each(func(s MetricsSink) error { return s.RecordCorridor(ev) })
}
