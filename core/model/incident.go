package model

import (
	"time"

	"github.com/kilianp07/resqroute/core/geo"
)

// Domain separates medical bookings from fire incidents.
type Domain string

const (
	DomainMedical Domain = "medical"
	DomainFire    Domain = "fire"
)

// Severity is drawn from a closed per-domain enum.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"

	SeverityMinor        Severity = "minor"
	SeverityModerate     Severity = "moderate"
	SeverityMajor        Severity = "major"
	SeverityCatastrophic Severity = "catastrophic"
)

// Medical emergency types.
const (
	EmergencyCardiacArrest       = "cardiac_arrest"
	EmergencyBreathingDifficulty = "breathing_difficulty"
	EmergencySevereBleeding      = "severe_bleeding"
	EmergencyStroke              = "stroke"
	EmergencyAccident            = "accident"
	EmergencyBurns               = "burns"
	EmergencyPoisoning           = "poisoning"
	EmergencyPregnancy           = "pregnancy_emergency"
	EmergencyUnconscious         = "unconscious"
	EmergencyFracture            = "fracture"
	EmergencyOther               = "other"
)

// Fire incident types.
const (
	FireBuilding   = "building"
	FireHighRise   = "high_rise"
	FireIndustrial = "industrial"
	FireVehicle    = "vehicle"
	FireWildfire   = "wildfire"
	FireChemical   = "chemical"
	FireElectrical = "electrical"
	FireRescue     = "rescue"
)

// Status is a lifecycle state shared by both domains.
type Status string

const (
	StatusPending         Status = "pending"
	StatusSearching       Status = "searching"
	StatusAssigned        Status = "assigned"
	StatusEnRoute         Status = "en_route"
	StatusPickedUp        Status = "picked_up"
	StatusEnRouteHospital Status = "en_route_hospital"
	StatusReachedHospital Status = "reached_hospital"

	StatusReported     Status = "reported"
	StatusDispatched   Status = "dispatched"
	StatusOnScene      Status = "on_scene"
	StatusControlled   Status = "controlled"
	StatusExtinguished Status = "extinguished"

	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is accepted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// TimelineEntry is one append-only status change.
type TimelineEntry struct {
	Status    Status     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Location  *geo.Point `json:"location,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// Assignment links a claimed candidate to an incident.
type Assignment struct {
	CandidateID string    `json:"candidate_id"`
	Kind        Kind      `json:"kind"`
	Role        string    `json:"role,omitempty"`
	Score       float64   `json:"score"`
	DistanceKm  float64   `json:"distance_km"`
	AssignedAt  time.Time `json:"assigned_at"`
}

// Markers holds the named timestamps recorded on marker statuses.
type Markers struct {
	AssignedAt        *time.Time `json:"assigned_at,omitempty"`
	EnRouteAt         *time.Time `json:"en_route_at,omitempty"`
	ArrivedAt         *time.Time `json:"arrived_at,omitempty"`
	ReachedHospitalAt *time.Time `json:"reached_hospital_at,omitempty"`
	ControlledAt      *time.Time `json:"controlled_at,omitempty"`
	ExtinguishedAt    *time.Time `json:"extinguished_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
}

// Incident is a medical booking or a fire incident.
type Incident struct {
	ID            string          `json:"id"`
	Domain        Domain          `json:"domain"`
	Reporter      string          `json:"reporter"`
	Type          string          `json:"type"`
	Severity      Severity        `json:"severity"`
	Priority      int             `json:"priority"`
	Origin        geo.Point       `json:"origin"`
	Destination   *geo.Point      `json:"destination,omitempty"`
	DestinationID string          `json:"destination_id,omitempty"`
	StationID     string          `json:"station_id,omitempty"`
	Assignments   []Assignment    `json:"assignments,omitempty"`
	Status        Status          `json:"status"`
	Timeline      []TimelineEntry `json:"timeline"`
	CreatedAt     time.Time       `json:"created_at"`
	Markers       Markers         `json:"markers"`

	HospitalPreference string   `json:"hospital_preference,omitempty"`
	PickupETA          *geo.ETA `json:"pickup_eta,omitempty"`
	DestinationETA     *geo.ETA `json:"destination_eta,omitempty"`
	EstimatedCost      float64  `json:"estimated_cost"`
	PeopleTrapped      bool     `json:"people_trapped,omitempty"`
	CancellationReason string   `json:"cancellation_reason,omitempty"`
	Rating             float64  `json:"rating,omitempty"`
	CorridorIDs        []string `json:"corridor_ids,omitempty"`
}

// CandidateIDs lists the assigned candidate identities in assignment order.
func (i *Incident) CandidateIDs() []string {
	ids := make([]string, 0, len(i.Assignments))
	for _, a := range i.Assignments {
		ids = append(ids, a.CandidateID)
	}
	return ids
}

// Clone returns a deep copy safe to hand to another goroutine.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	c := *i
	c.Assignments = append([]Assignment(nil), i.Assignments...)
	c.Timeline = append([]TimelineEntry(nil), i.Timeline...)
	c.CorridorIDs = append([]string(nil), i.CorridorIDs...)
	return &c
}
