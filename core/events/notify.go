package events

import (
	"time"

	"github.com/kilianp07/resqroute/core/geo"
)

// Kind names a notify intent.
type Kind string

const (
	IncidentAssigned   Kind = "incident.assigned"
	IncidentStatus     Kind = "incident.status"
	IncidentNoResource Kind = "incident.no_resource"
	CorridorCreated    Kind = "corridor.created"
	CorridorCleared    Kind = "corridor.cleared"
	LaneClear          Kind = "corridor.lane_clear"
	SignalEvicted      Kind = "corridor.signal_evicted"
	VehicleTracking    Kind = "vehicle.tracking"
)

// Notify is a plain data intent. Only the fields relevant to Kind are set.
type Notify struct {
	Kind       Kind       `json:"kind"`
	IncidentID string     `json:"incident_id,omitempty"`
	CorridorID string     `json:"corridor_id,omitempty"`
	VehicleID  string     `json:"vehicle_id,omitempty"`
	SignalID   string     `json:"signal_id,omitempty"`
	Status     string     `json:"status,omitempty"`
	Units      []string   `json:"units,omitempty"`
	Location   *geo.Point `json:"location,omitempty"`
	ETAMinutes int        `json:"eta_minutes,omitempty"`
	Message    string     `json:"message,omitempty"`
	Time       time.Time  `json:"time"`
}

// Publisher accepts intents without blocking.
type Publisher interface {
	Publish(Notify)
}

// Discard drops every intent.
type Discard struct{}

func (Discard) Publish(Notify) {}
