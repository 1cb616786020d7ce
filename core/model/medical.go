package model

import "github.com/kilianp07/resqroute/core/geo"

// AmbulanceClass is the care level of an ambulance.
type AmbulanceClass string

const (
	ClassALS      AmbulanceClass = "als"
	ClassBLS      AmbulanceClass = "bls"
	ClassBasic    AmbulanceClass = "basic"
	ClassNeonatal AmbulanceClass = "neonatal"
	ClassAir      AmbulanceClass = "air"
)

// Gear is an equipment item carried by an ambulance.
type Gear string

const (
	GearDefibrillator Gear = "defibrillator"
	GearVentilator    Gear = "ventilator"
	GearOxygen        Gear = "oxygen"
	GearECGMonitor    Gear = "ecgMonitor"
	GearStretcher     Gear = "stretcher"
	GearFirstAidKit   Gear = "firstAidKit"
	GearSuction       Gear = "suction"
)

// Ambulance is a medical response vehicle.
type Ambulance struct {
	Base          `yaml:",inline"`
	VehicleNumber string         `json:"vehicle_number" yaml:"vehicle_number"`
	Class         AmbulanceClass `json:"class" yaml:"class"`
	Equipment     []Gear         `json:"equipment" yaml:"equipment"`
	FuelLevel     float64        `json:"fuel_level" yaml:"fuel_level"`
	HomeHospital  *geo.Point     `json:"home_hospital,omitempty" yaml:"home_hospital,omitempty"`
}

func (Ambulance) Kind() Kind { return KindAmbulance }

// Has reports whether the ambulance carries g.
func (a Ambulance) Has(g Gear) bool {
	for _, e := range a.Equipment {
		if e == g {
			return true
		}
	}
	return false
}

// Facility is a hospital capability.
type Facility string

const (
	FacilityICU              Facility = "icu"
	FacilityEmergencyRoom    Facility = "emergencyRoom"
	FacilityOperationTheater Facility = "operationTheater"
	FacilityBloodBank        Facility = "bloodBank"
	FacilityCTScan           Facility = "ctScan"
	FacilityMRI              Facility = "mri"
	FacilityXRay             Facility = "xray"
	FacilityVentilators      Facility = "ventilators"
	FacilityDefibrillator    Facility = "defibrillator"
)

// Beds counts free beds per ward.
type Beds struct {
	General   int `json:"general" yaml:"general"`
	ICU       int `json:"icu" yaml:"icu"`
	Emergency int `json:"emergency" yaml:"emergency"`
}

// Hospital is a destination facility.
type Hospital struct {
	Base                 `yaml:",inline"`
	Name                 string     `json:"name" yaml:"name"`
	Government           bool       `json:"government" yaml:"government"`
	AcceptingEmergencies bool       `json:"accepting_emergencies" yaml:"accepting_emergencies"`
	Beds                 Beds       `json:"beds" yaml:"beds"`
	Specialties          []string   `json:"specialties" yaml:"specialties"`
	Facilities           []Facility `json:"facilities" yaml:"facilities"`
}

func (Hospital) Kind() Kind { return KindHospital }

// HasFacility reports whether f is available.
func (h Hospital) HasFacility(f Facility) bool {
	for _, x := range h.Facilities {
		if x == f {
			return true
		}
	}
	return false
}

// HasSpecialty reports whether the hospital runs department s.
func (h Hospital) HasSpecialty(s string) bool {
	for _, x := range h.Specialties {
		if x == s {
			return true
		}
	}
	return false
}

// FreeBeds is the total free capacity.
func (h Hospital) FreeBeds() int { return h.Beds.General + h.Beds.ICU + h.Beds.Emergency }
