package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/model"
)

func truck(id string, tt model.TruckType, km float64) model.FireTruck {
	return model.FireTruck{
		Base:      model.Base{CandidateID: id, Position: north(km), IsActive: true},
		Type:      tt,
		StationID: "st-1",
		FuelLevel: 90,
	}
}

func TestTruckStationLoadPenalty(t *testing.T) {
	e := NewEngine(DefaultConfig())
	tr := truck("t1", model.TruckHazmat, 20)
	ctx := Context{Severity: model.SeverityMinor, Origin: origin}

	r, _ := e.ScoreOne(ctx, tr)
	assert.InDelta(t, 60, r.Score, 0.01)

	ctx.Stations = map[string]model.FireStation{"st-1": {TotalTrucks: 2, ActiveIncidents: 2}}
	r, _ = e.ScoreOne(ctx, tr)
	assert.InDelta(t, 45, r.Score, 0.01)
}

func TestRequiredTruckTypes(t *testing.T) {
	assert.Equal(t, []model.TruckType{model.TruckHazmat, model.TruckPumper}, RequiredTruckTypes(model.FireIndustrial, false))
	assert.Equal(t, []model.TruckType{model.TruckRescue, model.TruckPumper}, RequiredTruckTypes(model.FireBuilding, true))
	assert.Equal(t, []model.TruckType{model.TruckRescue, model.TruckPumper}, RequiredTruckTypes(model.FireRescue, true))
	assert.Equal(t, []model.TruckType{model.TruckPumper}, RequiredTruckTypes("unknown", false))
}

func TestTrucksFor(t *testing.T) {
	assert.Equal(t, 1, TrucksFor(model.SeverityMinor))
	assert.Equal(t, 2, TrucksFor(model.SeverityModerate))
	assert.Equal(t, 3, TrucksFor(model.SeverityMajor))
	assert.Equal(t, 5, TrucksFor(model.SeverityCatastrophic))
	assert.Equal(t, 1, TrucksFor(model.SeverityHigh))
}

func TestPlanCoversRequiredTypes(t *testing.T) {
	rank := func(tr model.FireTruck, score float64) Ranked {
		return Ranked{Candidate: tr, ID: tr.ID(), Score: score}
	}
	r := []Ranked{
		rank(truck("pA", model.TruckPumper, 1), 95),
		rank(truck("lB", model.TruckLadder, 1), 90),
		rank(truck("hC", model.TruckHazmat, 1), 80),
		rank(truck("pD", model.TruckPumper, 1), 70),
	}
	plan := Plan(r, 3, []model.TruckType{model.TruckHazmat, model.TruckPumper})
	require.Len(t, plan, 3)
	assert.Equal(t, "hC", plan[0].ID)
	assert.Equal(t, "pA", plan[1].ID)
	assert.Equal(t, "lB", plan[2].ID)
	assert.Equal(t, "Hazmat Control (Lead)", plan[0].Role)
	assert.Equal(t, "Primary Attack (Unit 2)", plan[1].Role)
	assert.Equal(t, "Aerial Ladder (Unit 3)", plan[2].Role)

	one := Plan(r, 1, []model.TruckType{model.TruckHazmat, model.TruckPumper})
	require.Len(t, one, 1)
	assert.Equal(t, "hC", one[0].ID)
	assert.Nil(t, Plan(r, 0, nil))
}

func TestStationEligibility(t *testing.T) {
	e := NewEngine(DefaultConfig())
	st := func(id string, km float64, op model.OperationalStatus) model.FireStation {
		return model.FireStation{
			Base:        model.Base{CandidateID: id, Position: north(km), IsActive: true},
			Operational: op,
			TotalTrucks: 3,
		}
	}
	ctx := Context{Domain: model.DomainFire, Origin: origin}
	r := e.Rank(ctx, []model.Candidate{
		st("near", 2, model.FullyOperational),
		st("limited", 2, model.Limited),
		st("closed", 1, model.Closed),
		st("far", 25, model.FullyOperational),
	})
	require.Len(t, r, 2)
	assert.Equal(t, "near", r[0].ID)
	assert.Equal(t, "limited", r[1].ID)
	assert.InDelta(t, 96, r[0].Score, 0.05)
}
