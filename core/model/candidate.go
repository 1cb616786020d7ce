package model

import (
	"fmt"

	"github.com/kilianp07/resqroute/core/geo"
)

// Availability is the dispatch state of a Candidate.
type Availability string

const (
	Available   Availability = "available"
	Assigned    Availability = "assigned"
	Unavailable Availability = "unavailable"
)

// Kind identifies a Candidate variant.
type Kind string

const (
	KindAmbulance   Kind = "ambulance"
	KindFireTruck   Kind = "fire_truck"
	KindHospital    Kind = "hospital"
	KindFireStation Kind = "fire_station"
)

// Locatable exposes identity and position.
type Locatable interface {
	ID() string
	Location() geo.Point
}

// Scoreable exposes what the scoring engine reads.
type Scoreable interface {
	Kind() Kind
	Rating() float64
	Active() bool
}

// Claimable exposes the claim state mutated by the registry.
type Claimable interface {
	Availability() Availability
	ActiveIncident() string
}

// Candidate is anything that can be matched to an incident.
type Candidate interface {
	Locatable
	Scoreable
	Claimable
}

// Base holds the fields shared by every Candidate variant.
type Base struct {
	CandidateID     string       `json:"id" yaml:"id"`
	Position        geo.Point    `json:"location" yaml:"location"`
	Status          Availability `json:"status" yaml:"status"`
	IncidentRef     string       `json:"active_incident,omitempty" yaml:"active_incident,omitempty"`
	IsActive        bool         `json:"is_active" yaml:"is_active"`
	AverageRating   float64      `json:"average_rating" yaml:"average_rating"`
	TotalOperations int          `json:"total_operations" yaml:"total_operations"`
}

func (b Base) ID() string             { return b.CandidateID }
func (b Base) Location() geo.Point    { return b.Position }
func (b Base) Rating() float64        { return b.AverageRating }
func (b Base) Active() bool           { return b.IsActive }
func (b Base) ActiveIncident() string { return b.IncidentRef }

func (b Base) Availability() Availability {
	if b.Status == "" {
		return Available
	}
	return b.Status
}

// Eligible reports the basic filter every ranking applies.
func Eligible(c Candidate) bool {
	return c.Active() && c.Availability() == Available
}

// BaseOf returns the shared fields of a known variant.
func BaseOf(c Candidate) (Base, error) {
	switch v := c.(type) {
	case Ambulance:
		return v.Base, nil
	case FireTruck:
		return v.Base, nil
	case Hospital:
		return v.Base, nil
	case FireStation:
		return v.Base, nil
	default:
		return Base{}, fmt.Errorf("model: unknown candidate %T", c)
	}
}

// WithBase returns a copy of c carrying b. Variant specific fields are kept.
func WithBase(c Candidate, b Base) (Candidate, error) {
	switch v := c.(type) {
	case Ambulance:
		v.Base = b
		return v, nil
	case FireTruck:
		v.Base = b
		return v, nil
	case Hospital:
		v.Base = b
		return v, nil
	case FireStation:
		v.Base = b
		return v, nil
	default:
		return nil, fmt.Errorf("model: unknown candidate %T", c)
	}
}

// RollRating folds a new rating into the running average and bumps the operation count.
func (b Base) RollRating(rating float64) Base {
	total := float64(b.TotalOperations)
	b.AverageRating = (b.AverageRating*total + rating) / (total + 1)
	b.TotalOperations++
	return b
}
