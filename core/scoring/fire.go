package scoring

import (
	"fmt"
	"math"

	"github.com/kilianp07/resqroute/core/model"
)

const (
	requiredTypeBonus  = 15.0
	waterBonusCap      = 10.0
	stationLoadPenalty = 15.0
	defaultTruckBonus  = 10.0
)

var truckTypeBonus = map[model.Severity]map[model.TruckType]float64{
	model.SeverityMinor:        {model.TruckPumper: 25, model.TruckLadder: 5, model.TruckTanker: 10, model.TruckRescue: 5, model.TruckHazmat: 0, model.TruckWildland: 10},
	model.SeverityModerate:     {model.TruckPumper: 25, model.TruckLadder: 15, model.TruckTanker: 15, model.TruckRescue: 10, model.TruckHazmat: 5, model.TruckWildland: 10},
	model.SeverityMajor:        {model.TruckPumper: 25, model.TruckLadder: 25, model.TruckTanker: 20, model.TruckRescue: 20, model.TruckHazmat: 15, model.TruckWildland: 15},
	model.SeverityCatastrophic: {model.TruckPumper: 30, model.TruckLadder: 30, model.TruckTanker: 25, model.TruckRescue: 25, model.TruckHazmat: 25, model.TruckWildland: 20},
}

var requiredTrucks = map[string][]model.TruckType{
	model.FireBuilding:   {model.TruckPumper},
	model.FireHighRise:   {model.TruckLadder, model.TruckPumper},
	model.FireIndustrial: {model.TruckHazmat, model.TruckPumper},
	model.FireVehicle:    {model.TruckPumper},
	model.FireWildfire:   {model.TruckWildland, model.TruckTanker},
	model.FireChemical:   {model.TruckHazmat, model.TruckPumper},
	model.FireElectrical: {model.TruckPumper},
	model.FireRescue:     {model.TruckRescue, model.TruckPumper},
}

var trucksBySeverity = map[model.Severity]int{
	model.SeverityMinor:        1,
	model.SeverityModerate:     2,
	model.SeverityMajor:        3,
	model.SeverityCatastrophic: 5,
}

var roleByType = map[model.TruckType]string{
	model.TruckPumper:   "Primary Attack",
	model.TruckLadder:   "Aerial Ladder",
	model.TruckTanker:   "Water Supply",
	model.TruckRescue:   "Search & Rescue",
	model.TruckHazmat:   "Hazmat Control",
	model.TruckWildland: "Brush Attack",
}

// RequiredTruckTypes returns the apparatus a fire type needs. A rescue unit
// leads the list whenever people are trapped.
func RequiredTruckTypes(fireType string, peopleTrapped bool) []model.TruckType {
	req, ok := requiredTrucks[fireType]
	if !ok {
		req = []model.TruckType{model.TruckPumper}
	}
	out := append([]model.TruckType(nil), req...)
	if peopleTrapped && !containsType(out, model.TruckRescue) {
		out = append([]model.TruckType{model.TruckRescue}, out...)
	}
	return out
}

// TrucksFor returns how many units a fire severity calls for.
func TrucksFor(sev model.Severity) int {
	if n, ok := trucksBySeverity[sev]; ok {
		return n
	}
	return 1
}

func containsType(ts []model.TruckType, t model.TruckType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

type truckScorer struct{ w Weights }

func (s truckScorer) Eligible(_ Context, c model.Candidate, _ float64) bool {
	t, ok := c.(model.FireTruck)
	return ok && t.FuelLevel >= minFuelLevel
}

func (s truckScorer) Score(ctx Context, c model.Candidate, km float64) float64 {
	t, ok := c.(model.FireTruck)
	if !ok {
		return 0
	}
	score := baseScore - s.w.penalty(km)
	bonus := defaultTruckBonus
	if row, ok := truckTypeBonus[ctx.Severity]; ok {
		if v, ok := row[t.Type]; ok {
			bonus = v
		}
	}
	score += bonus
	if containsType(ctx.RequiredTypes, t.Type) {
		score += requiredTypeBonus
	}
	score += math.Min(waterBonusCap, float64(t.WaterCapacity)/1000)
	if st, ok := ctx.Stations[t.StationID]; ok && st.TotalTrucks > 0 && st.ActiveIncidents >= st.TotalTrucks {
		score -= stationLoadPenalty
	}
	score += t.Rating() * 2
	return score
}

type stationScorer struct {
	w        Weights
	radiusKm float64
}

func (s stationScorer) Eligible(_ Context, c model.Candidate, km float64) bool {
	st, ok := c.(model.FireStation)
	return ok && st.Operating() && km <= s.radiusKm
}

func (s stationScorer) Score(_ Context, c model.Candidate, km float64) float64 {
	st, ok := c.(model.FireStation)
	if !ok {
		return 0
	}
	score := baseScore - s.w.penalty(km)
	if st.Operational == model.Limited {
		score -= 10
	}
	if st.TotalTrucks > 0 && st.ActiveIncidents >= st.TotalTrucks {
		score -= 20
	}
	score += st.Rating() * 2
	return score
}

// PlanEntry is one unit of a multi-unit fire dispatch.
type PlanEntry struct {
	Ranked
	Role string `json:"role"`
}

// Plan picks n distinct trucks, first covering each required type with its
// best ranked unit, then filling the remaining slots by rank.
func Plan(r []Ranked, n int, required []model.TruckType) []PlanEntry {
	if n <= 0 {
		return nil
	}
	picked := make([]Ranked, 0, n)
	used := make(map[string]struct{}, n)
	for _, want := range required {
		if len(picked) == n {
			break
		}
		for _, x := range r {
			if _, taken := used[x.ID]; taken {
				continue
			}
			if t, ok := x.Candidate.(model.FireTruck); ok && t.Type == want {
				picked = append(picked, x)
				used[x.ID] = struct{}{}
				break
			}
		}
	}
	for _, x := range r {
		if len(picked) == n {
			break
		}
		if _, taken := used[x.ID]; taken {
			continue
		}
		picked = append(picked, x)
		used[x.ID] = struct{}{}
	}
	out := make([]PlanEntry, len(picked))
	for i, x := range picked {
		out[i] = PlanEntry{Ranked: x, Role: roleFor(x.Candidate, i)}
	}
	return out
}

func roleFor(c model.Candidate, idx int) string {
	base := "Support"
	if t, ok := c.(model.FireTruck); ok {
		if r, ok := roleByType[t.Type]; ok {
			base = r
		}
	}
	if idx == 0 {
		return base + " (Lead)"
	}
	return fmt.Sprintf("%s (Unit %d)", base, idx+1)
}
