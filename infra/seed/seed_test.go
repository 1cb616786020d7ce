package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/registry"
)

const fleetYAML = `
signals:
  - id: S1
    location: {latitude: 12.9716, longitude: 77.5946}
    normal_cycle: {green: 30s, yellow: 3s, red: 40s}
  - id: S2
    location: {latitude: 12.9750, longitude: 77.5990}
ambulances:
  - id: amb-1
    location: {latitude: 12.97, longitude: 77.59}
    is_active: true
    class: als
    equipment: [defibrillator, oxygen]
    fuel_level: 80
hospitals:
  - id: h-1
    name: City General
    location: {latitude: 12.96, longitude: 77.58}
    is_active: true
    government: true
    accepting_emergencies: true
    beds: {general: 10, icu: 2, emergency: 3}
fire_stations:
  - id: st-1
    location: {latitude: 12.98, longitude: 77.60}
    is_active: true
    operational_status: fully_operational
    total_trucks: 1
fire_trucks:
  - id: p-1
    location: {latitude: 12.98, longitude: 77.60}
    is_active: true
    truck_type: pumper
    station_id: st-1
    fuel_level: 90
`

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "city.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fleetYAML), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	require.Len(t, f.Signals, 2)
	assert.Equal(t, 30*time.Second, f.Signals[0].Cycle.Green)
	require.Len(t, f.Ambulances, 1)
	assert.Equal(t, model.ClassALS, f.Ambulances[0].Class)
	assert.True(t, f.Ambulances[0].Has(model.GearDefibrillator))
	assert.Equal(t, 3, f.Hospitals[0].Beds.Emergency)
	assert.Equal(t, model.TruckPumper, f.FireTrucks[0].Type)

	net := corridor.NewNetwork(model.Cycle{})
	assert.Equal(t, 2, f.ApplySignals(net))
	s2, err := net.Get("S2")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCycle, s2.Cycle)

	reg := registry.NewStore()
	assert.Equal(t, 4, f.ApplyFleet(reg))
	assert.Len(t, reg.QueryActive(registry.Filter{Kind: model.KindAmbulance}), 1)
	assert.Contains(t, reg.Stations(), "st-1")
}

func TestDecodeJSON(t *testing.T) {
	doc := `{"signals":[{"id":"S9","location":{"latitude":1,"longitude":2}}],
	  "ambulances":[{"id":"a","location":{"latitude":1,"longitude":2},"is_active":true,"class":"bls"}]}`
	f, err := Decode(strings.NewReader(doc), "json")
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	assert.Equal(t, "S9", f.Signals[0].ID)
	assert.Equal(t, "a", f.Ambulances[0].ID())

	_, err = Decode(strings.NewReader(doc), "toml")
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	f := File{
		Signals: []Signal{{ID: "S1"}, {ID: "S2", Location: pt()}, {ID: "S2", Location: pt()}},
		FireTrucks: []model.FireTruck{{
			Base:      model.Base{CandidateID: "t1", Position: pt()},
			StationID: "nowhere",
		}},
	}
	err := f.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "signal S1 has no location")
	assert.Contains(t, msg, "duplicate signal S2")
	assert.Contains(t, msg, "unknown station nowhere")
}

func TestLoadAllMerges(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "signals.yml")
	b := filepath.Join(dir, "fleet.json")
	require.NoError(t, os.WriteFile(a, []byte("signals:\n  - id: S1\n    location: {latitude: 1, longitude: 1}\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`{"hospitals":[{"id":"h","location":{"latitude":1,"longitude":1}}]}`), 0o644))

	f, err := LoadAll([]string{a, b})
	require.NoError(t, err)
	assert.Len(t, f.Signals, 1)
	assert.Len(t, f.Hospitals, 1)

	_, err = LoadAll([]string{filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func pt() geo.Point { return geo.Point{Lat: 1, Lng: 1} }
