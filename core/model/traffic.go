package model

import (
	"time"

	"github.com/kilianp07/resqroute/core/geo"
)

// SignalState is the lamp currently shown by a signal.
type SignalState string

const (
	StateRed    SignalState = "RED"
	StateYellow SignalState = "YELLOW"
	StateGreen  SignalState = "GREEN"
)

// LinkStatus reports whether the field controller is reachable.
type LinkStatus string

const (
	Online  LinkStatus = "ONLINE"
	Offline LinkStatus = "OFFLINE"
)

// Action is a command understood by signal controllers.
type Action string

const (
	ActionGreenOverride Action = "GREEN_OVERRIDE"
	ActionRedHold       Action = "RED_HOLD"
	ActionResetToNormal Action = "RESET_TO_NORMAL"
)

// Cycle is the normal timing plan of a signal.
type Cycle struct {
	Green  time.Duration `json:"green" yaml:"green"`
	Yellow time.Duration `json:"yellow" yaml:"yellow"`
	Red    time.Duration `json:"red" yaml:"red"`
}

// DefaultCycle is applied to signals registered without a timing plan.
var DefaultCycle = Cycle{Green: 45 * time.Second, Yellow: 3 * time.Second, Red: 60 * time.Second}

// Override is a forced state owned by a corridor or an operator.
type Override struct {
	CorridorID string    `json:"corridor_id"`
	Action     Action    `json:"action"`
	Priority   int       `json:"priority"`
	Reason     string    `json:"reason,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the override lapsed at now.
func (o Override) Expired(now time.Time) bool { return !now.Before(o.ExpiresAt) }

// Signal is a physical traffic light.
type Signal struct {
	ID         string      `json:"id"`
	Location   geo.Point   `json:"location"`
	State      SignalState `json:"state"`
	Status     LinkStatus  `json:"status"`
	Cycle      Cycle       `json:"normal_cycle"`
	Override   *Override   `json:"current_override,omitempty"`
	LastUpdate time.Time   `json:"last_update"`
}

// SignalCommand is published on a signal's command topic.
type SignalCommand struct {
	Action     Action `json:"action"`
	Command    Action `json:"command"`
	DurationMS int64  `json:"duration"`
	Priority   int    `json:"priority"`
	CorridorID string `json:"corridor_id,omitempty"`
	Timestamp  string `json:"timestamp"`
	Source     string `json:"source"`
}

// CorridorStatus is active until cleared.
type CorridorStatus string

const (
	CorridorActive  CorridorStatus = "ACTIVE"
	CorridorCleared CorridorStatus = "CLEARED"
)

// Corridor is a time-bounded set of overrides along a route.
type Corridor struct {
	ID          string      `json:"id"`
	VehicleID   string      `json:"vehicle_id"`
	VehicleType string      `json:"vehicle_type"`
	IncidentID  string      `json:"incident_id,omitempty"`
	Route       []geo.Point `json:"route"`
	Signals     []string    `json:"signals"`
	Denied      []string    `json:"denied,omitempty"`
	// Released holds signals an operator reset; refreshes leave them alone.
	Released     []string       `json:"released,omitempty"`
	Priority     int            `json:"priority"`
	Duration     time.Duration  `json:"duration"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	MaxExpiresAt time.Time      `json:"max_expires_at"`
	LastLocation *geo.Point     `json:"last_location,omitempty"`
	ETAMinutes   int            `json:"eta_minutes,omitempty"`
	LastUpdate   time.Time      `json:"last_update"`
	Status       CorridorStatus `json:"status"`
	ClearedAt    *time.Time     `json:"cleared_at,omitempty"`
	ClearReason  string         `json:"clear_reason,omitempty"`
}

// Clone copies the slices so the caller can keep the value.
func (c Corridor) Clone() Corridor {
	c.Route = append([]geo.Point(nil), c.Route...)
	c.Signals = append([]string(nil), c.Signals...)
	c.Denied = append([]string(nil), c.Denied...)
	c.Released = append([]string(nil), c.Released...)
	return c
}
