package dispatch

import (
	"fmt"

	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/incident"
	"github.com/kilianp07/resqroute/core/model"
)

// Hospital preferences of a medical request.
const (
	PreferGovernment = "government"
	PreferPrivate    = "private"
	PreferAny        = "any"
)

// Request is an incoming incident report.
type Request struct {
	Domain   model.Domain   `json:"domain"`
	Reporter string         `json:"reporter"`
	Type     string         `json:"type"`
	Severity model.Severity `json:"severity"`
	Origin   geo.Point      `json:"location"`
	Note     string         `json:"note,omitempty"`

	// Medical only.
	HospitalPreference string `json:"hospital_preference,omitempty"`
	SelectedHospital   string `json:"selected_hospital,omitempty"`

	// Fire only.
	PeopleTrapped bool `json:"people_trapped,omitempty"`

	// Route overrides the straight line used for the corridor.
	Route []geo.Point `json:"route,omitempty"`
}

func (r *Request) normalize() error {
	if r.Domain == "" {
		r.Domain = model.DomainMedical
	}
	if r.Domain != model.DomainMedical && r.Domain != model.DomainFire {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidRequest, r.Domain)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidRequest)
	}
	if !incident.ValidSeverity(r.Domain, r.Severity) {
		return fmt.Errorf("%w: severity %q is not valid for %s", ErrInvalidRequest, r.Severity, r.Domain)
	}
	if r.Origin.IsZero() {
		return fmt.Errorf("%w: location is required", ErrInvalidRequest)
	}
	if r.Domain == model.DomainMedical {
		switch r.HospitalPreference {
		case "":
			r.HospitalPreference = PreferAny
		case PreferGovernment, PreferPrivate, PreferAny:
		default:
			return fmt.Errorf("%w: unknown hospital preference %q", ErrInvalidRequest, r.HospitalPreference)
		}
	}
	return nil
}
