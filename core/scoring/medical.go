package scoring

import (
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
)

const (
	baseScore          = 100.0
	perItemBonus       = 5.0
	equipmentCap       = 20.0
	facilityCap        = 20.0
	specialtyBonus     = 20.0
	homeHospitalBonus  = 5.0
	homeHospitalRadius = 5.0
	minFuelLevel       = 20.0
	defaultClassBonus  = 15.0
)

// ambulanceClassBonus is indexed by severity then class. Basic units are
// penalised on critical calls.
var ambulanceClassBonus = map[model.Severity]map[model.AmbulanceClass]float64{
	model.SeverityCritical: {model.ClassALS: 30, model.ClassBLS: 15, model.ClassBasic: -30, model.ClassNeonatal: 10, model.ClassAir: 30},
	model.SeverityHigh:     {model.ClassALS: 25, model.ClassBLS: 25, model.ClassBasic: 10, model.ClassNeonatal: 15, model.ClassAir: 20},
	model.SeverityMedium:   {model.ClassALS: 15, model.ClassBLS: 30, model.ClassBasic: 20, model.ClassNeonatal: 10, model.ClassAir: 10},
	model.SeverityLow:      {model.ClassALS: 10, model.ClassBLS: 25, model.ClassBasic: 30, model.ClassNeonatal: 15, model.ClassAir: 5},
}

var gearByEmergency = map[string][]model.Gear{
	model.EmergencyCardiacArrest:       {model.GearDefibrillator, model.GearECGMonitor, model.GearOxygen},
	model.EmergencyBreathingDifficulty: {model.GearVentilator, model.GearOxygen},
	model.EmergencySevereBleeding:      {model.GearFirstAidKit},
	model.EmergencyStroke:              {model.GearOxygen, model.GearECGMonitor},
	model.EmergencyAccident:            {model.GearStretcher, model.GearFirstAidKit},
	model.EmergencyBurns:               {model.GearFirstAidKit, model.GearOxygen},
	model.EmergencyPoisoning:           {model.GearFirstAidKit, model.GearSuction},
	model.EmergencyPregnancy:           {model.GearStretcher, model.GearOxygen},
	model.EmergencyUnconscious:         {model.GearOxygen, model.GearStretcher},
}

// mandatoryGear is what CanHandle expects on board per emergency type.
var mandatoryGear = map[string]model.Gear{
	model.EmergencyCardiacArrest:       model.GearDefibrillator,
	model.EmergencyBreathingDifficulty: model.GearOxygen,
	model.EmergencyPregnancy:           model.GearStretcher,
}

var specialtyByEmergency = map[string]string{
	model.EmergencyCardiacArrest:       "Cardiology",
	model.EmergencyStroke:              "Neurology",
	model.EmergencyFracture:            "Orthopedics",
	model.EmergencyBurns:               "Burn Care",
	model.EmergencyPregnancy:           "Obstetrics",
	model.EmergencyBreathingDifficulty: "Pulmonology",
	model.EmergencyPoisoning:           "Toxicology",
	model.EmergencyUnconscious:         "Emergency Medicine",
}

var facilitiesByEmergency = map[string][]model.Facility{
	model.EmergencyCardiacArrest:       {model.FacilityICU, model.FacilityDefibrillator},
	model.EmergencyStroke:              {model.FacilityICU, model.FacilityCTScan, model.FacilityMRI},
	model.EmergencyBreathingDifficulty: {model.FacilityICU, model.FacilityVentilators},
	model.EmergencySevereBleeding:      {model.FacilityBloodBank, model.FacilityOperationTheater},
	model.EmergencyBurns:               {model.FacilityICU, model.FacilityOperationTheater},
	model.EmergencyPregnancy:           {model.FacilityOperationTheater},
	model.EmergencyFracture:            {model.FacilityXRay, model.FacilityOperationTheater},
}

// SpecialtyFor returns the department matching an emergency type.
func SpecialtyFor(emergencyType string) (string, bool) {
	s, ok := specialtyByEmergency[emergencyType]
	return s, ok
}

type ambulanceScorer struct{ w Weights }

// CanHandle reports whether a is fit for the incident: basic units do not
// suit critical calls, the tank must hold minFuelLevel and some emergency
// types need specific gear. It is advisory; ranking only penalises these
// units so a call is never left without the one unit that is free.
func CanHandle(a model.Ambulance, sev model.Severity, emergencyType string) bool {
	if sev == model.SeverityCritical && a.Class == model.ClassBasic {
		return false
	}
	if a.FuelLevel < minFuelLevel {
		return false
	}
	if g, ok := mandatoryGear[emergencyType]; ok && !a.Has(g) {
		return false
	}
	return true
}

func (s ambulanceScorer) Eligible(_ Context, c model.Candidate, _ float64) bool {
	_, ok := c.(model.Ambulance)
	return ok
}

func (s ambulanceScorer) Score(ctx Context, c model.Candidate, km float64) float64 {
	a, ok := c.(model.Ambulance)
	if !ok {
		return 0
	}
	score := baseScore - s.w.penalty(km)
	score += classBonus(ctx.Severity, a.Class)
	score += equipmentScore(a, ctx.Severity, ctx.EmergencyType)
	score += a.Rating() * 2
	if a.HomeHospital != nil && ctx.Destination != nil &&
		geo.DistanceKm(*a.HomeHospital, *ctx.Destination) < homeHospitalRadius {
		score += homeHospitalBonus
	}
	return score
}

func classBonus(sev model.Severity, class model.AmbulanceClass) float64 {
	if row, ok := ambulanceClassBonus[sev]; ok {
		if v, ok := row[class]; ok {
			return v
		}
	}
	return defaultClassBonus
}

func equipmentScore(a model.Ambulance, sev model.Severity, emergencyType string) float64 {
	var s float64
	for _, g := range gearByEmergency[emergencyType] {
		if a.Has(g) {
			s += perItemBonus
		}
	}
	if sev == model.SeverityCritical {
		if a.Has(model.GearVentilator) {
			s += perItemBonus
		}
		if a.Has(model.GearDefibrillator) {
			s += perItemBonus
		}
	}
	if s > equipmentCap {
		return equipmentCap
	}
	return s
}

type hospitalScorer struct {
	w        Weights
	govBonus float64
}

// CanAccept reports whether h can take a patient of the given severity.
func CanAccept(h model.Hospital, sev model.Severity) bool {
	if !h.Active() || !h.AcceptingEmergencies {
		return false
	}
	if h.FreeBeds() <= 0 {
		return false
	}
	if sev == model.SeverityCritical && h.Beds.ICU <= 0 {
		return false
	}
	if sev != model.SeverityLow && h.Beds.Emergency <= 0 {
		return false
	}
	return true
}

func (s hospitalScorer) Eligible(ctx Context, c model.Candidate, _ float64) bool {
	h, ok := c.(model.Hospital)
	return ok && CanAccept(h, ctx.Severity)
}

func (s hospitalScorer) Score(ctx Context, c model.Candidate, km float64) float64 {
	h, ok := c.(model.Hospital)
	if !ok {
		return 0
	}
	score := baseScore - s.w.penalty(km)
	switch beds := h.FreeBeds(); {
	case beds == 0:
		score -= 20
	case beds < 5:
		score -= 10
	case beds >= 10:
		score += 5
	}
	if sp, ok := specialtyByEmergency[ctx.EmergencyType]; ok && h.HasSpecialty(sp) {
		score += specialtyBonus
	}
	score += facilityScore(h, ctx.Severity, ctx.EmergencyType)
	score += h.Rating() * 2
	if h.Government {
		score += s.govBonus
	}
	return score
}

func facilityScore(h model.Hospital, sev model.Severity, emergencyType string) float64 {
	var s float64
	if h.HasFacility(model.FacilityEmergencyRoom) {
		s += 5
	}
	if h.HasFacility(model.FacilityICU) {
		if sev == model.SeverityCritical {
			s += 10
		} else {
			s += 5
		}
	}
	if h.HasFacility(model.FacilityOperationTheater) {
		s += 5
	}
	for _, f := range facilitiesByEmergency[emergencyType] {
		if h.HasFacility(f) {
			s += 3
		}
	}
	if s > facilityCap {
		return facilityCap
	}
	return s
}
