// Package incident owns the lifecycle of medical bookings and fire incidents.
// It mutates only the incident it is given.
package incident

import (
	"time"

	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
)

var medicalFlow = map[model.Status][]model.Status{
	model.StatusPending:         {model.StatusSearching, model.StatusAssigned},
	model.StatusSearching:       {model.StatusAssigned},
	model.StatusAssigned:        {model.StatusEnRoute},
	model.StatusEnRoute:         {model.StatusPickedUp},
	model.StatusPickedUp:        {model.StatusEnRouteHospital, model.StatusReachedHospital},
	model.StatusEnRouteHospital: {model.StatusReachedHospital},
	model.StatusReachedHospital: {model.StatusCompleted},
}

var fireFlow = map[model.Status][]model.Status{
	model.StatusReported:     {model.StatusDispatched},
	model.StatusDispatched:   {model.StatusEnRoute, model.StatusOnScene},
	model.StatusEnRoute:      {model.StatusOnScene},
	model.StatusOnScene:      {model.StatusControlled, model.StatusExtinguished, model.StatusCompleted},
	model.StatusControlled:   {model.StatusExtinguished, model.StatusCompleted},
	model.StatusExtinguished: {model.StatusCompleted},
}

// a patient already at the hospital can only be completed or failed
var notCancellable = map[model.Status]bool{
	model.StatusReachedHospital: true,
}

var priorities = map[model.Severity]int{
	model.SeverityCritical:     10,
	model.SeverityHigh:         8,
	model.SeverityMedium:       5,
	model.SeverityLow:          3,
	model.SeverityMinor:        3,
	model.SeverityModerate:     5,
	model.SeverityMajor:        8,
	model.SeverityCatastrophic: 10,
}

// Priority maps a severity to the 1..10 scale. Unknown severities get 5.
func Priority(sev model.Severity) int {
	if p, ok := priorities[sev]; ok {
		return p
	}
	return 5
}

// ValidSeverity reports whether sev belongs to the domain's enum.
func ValidSeverity(d model.Domain, sev model.Severity) bool {
	switch d {
	case model.DomainMedical:
		return sev == model.SeverityCritical || sev == model.SeverityHigh || sev == model.SeverityMedium || sev == model.SeverityLow
	case model.DomainFire:
		return sev == model.SeverityMinor || sev == model.SeverityModerate || sev == model.SeverityMajor || sev == model.SeverityCatastrophic
	}
	return false
}

// Initial is the first status of a new incident in domain d.
func Initial(d model.Domain) model.Status {
	if d == model.DomainFire {
		return model.StatusReported
	}
	return model.StatusPending
}

// AssignedStatus is the status reached once units are claimed.
func AssignedStatus(d model.Domain) model.Status {
	if d == model.DomainFire {
		return model.StatusDispatched
	}
	return model.StatusAssigned
}

// CanTransition reports whether from -> to is allowed in domain d.
func CanTransition(d model.Domain, from, to model.Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case model.StatusFailed:
		return true
	case model.StatusCancelled:
		return !notCancellable[from]
	}
	flow := medicalFlow
	if d == model.DomainFire {
		flow = fireFlow
	}
	for _, s := range flow[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine applies transitions using its clock.
type Machine struct {
	now func() time.Time
}

// NewMachine returns a Machine on the wall clock.
func NewMachine() *Machine { return &Machine{now: time.Now} }

// NewMachineWithClock is used by tests to control time.
func NewMachineWithClock(now func() time.Time) *Machine { return &Machine{now: now} }

// Open initialises a freshly reported incident.
func (m *Machine) Open(inc *model.Incident, note string) {
	at := m.now()
	inc.CreatedAt = at
	inc.Status = Initial(inc.Domain)
	inc.Priority = Priority(inc.Severity)
	loc := inc.Origin
	inc.Timeline = []model.TimelineEntry{{Status: inc.Status, Timestamp: at, Location: &loc, Note: note}}
}

// Transition moves inc to status to at the current time. Entries issued
// within the clock resolution are nudged forward so the timeline stays
// strictly increasing.
func (m *Machine) Transition(inc *model.Incident, to model.Status, note string, loc *geo.Point) error {
	at := m.now()
	if n := len(inc.Timeline); n > 0 {
		if last := inc.Timeline[n-1].Timestamp; !at.After(last) {
			at = last.Add(time.Nanosecond)
		}
	}
	return m.TransitionAt(inc, to, note, loc, at)
}

// TransitionAt applies a transition stamped by the reporter. Late deliveries
// whose timestamp does not advance the timeline are rejected and leave inc untouched.
func (m *Machine) TransitionAt(inc *model.Incident, to model.Status, note string, loc *geo.Point, at time.Time) error {
	if !CanTransition(inc.Domain, inc.Status, to) {
		return &TransitionError{IncidentID: inc.ID, From: inc.Status, To: to, Err: ErrInvalidTransition}
	}
	if n := len(inc.Timeline); n > 0 && !at.After(inc.Timeline[n-1].Timestamp) {
		return &TransitionError{IncidentID: inc.ID, From: inc.Status, To: to, Err: ErrStaleTimestamp}
	}
	inc.Timeline = append(inc.Timeline, model.TimelineEntry{Status: to, Timestamp: at, Location: loc, Note: note})
	inc.Status = to
	mark(&inc.Markers, to, at)
	return nil
}

func mark(mk *model.Markers, s model.Status, at time.Time) {
	t := at
	switch s {
	case model.StatusAssigned, model.StatusDispatched:
		mk.AssignedAt = &t
	case model.StatusEnRoute:
		mk.EnRouteAt = &t
	case model.StatusPickedUp, model.StatusOnScene:
		mk.ArrivedAt = &t
	case model.StatusReachedHospital:
		mk.ReachedHospitalAt = &t
	case model.StatusControlled:
		mk.ControlledAt = &t
	case model.StatusExtinguished:
		mk.ExtinguishedAt = &t
	case model.StatusCompleted:
		mk.CompletedAt = &t
	case model.StatusCancelled:
		mk.CancelledAt = &t
	}
}

// ResponseTime is arrival minus creation. ok is false until the unit arrived.
func ResponseTime(inc *model.Incident) (d time.Duration, ok bool) {
	if inc.Markers.ArrivedAt == nil || inc.CreatedAt.IsZero() {
		return 0, false
	}
	return inc.Markers.ArrivedAt.Sub(inc.CreatedAt), true
}

// OperationDuration is completion minus arrival.
func OperationDuration(inc *model.Incident) (d time.Duration, ok bool) {
	if inc.Markers.ArrivedAt == nil || inc.Markers.CompletedAt == nil {
		return 0, false
	}
	return inc.Markers.CompletedAt.Sub(*inc.Markers.ArrivedAt), true
}
