package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
)

const seedYAML = `
signals:
  - id: S1
    location: {latitude: 12.9725, longitude: 77.5946}
    normal_cycle: {green: 30s, yellow: 3s, red: 40s}
ambulances:
  - id: amb-1
    location: {latitude: 12.9806, longitude: 77.5946}
    is_active: true
    class: als
    equipment: [stretcher, oxygen]
    fuel_level: 90
hospitals:
  - id: h-1
    location: {latitude: 12.9536, longitude: 77.5946}
    is_active: true
    government: true
    accepting_emergencies: true
    beds: {general: 10, icu: 2, emergency: 4}
    facilities: [emergencyRoom]
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestParseRoute(t *testing.T) {
	r, err := parseRoute("12.97,77.59; 12.98 , 77.60;")
	require.NoError(t, err)
	assert.Equal(t, []geo.Point{{Lat: 12.97, Lng: 77.59}, {Lat: 12.98, Lng: 77.60}}, r)

	for _, bad := range []string{"", ";", "12.97", "a,b", "1,2,3"} {
		_, err := parseRoute(bad)
		assert.Error(t, err, bad)
	}
}

func TestCorridorPayload(t *testing.T) {
	corridorReq.vehicle = "amb-9"
	corridorReq.kind = corridor.VehicleAmbulance
	corridorReq.route = "1,2;3,4"
	corridorReq.priority = 0
	t.Cleanup(func() { corridorReq.vehicle, corridorReq.route = "", "" })

	topic, p, err := corridorPayload()
	require.NoError(t, err)
	assert.Equal(t, "emergency/corridor/amb-9/request", topic)
	var got corridor.CorridorRequest
	require.NoError(t, json.Unmarshal(p, &got))
	assert.Equal(t, "amb-9", got.VehicleID)
	assert.Len(t, got.Route.Coordinates, 2)
}

func TestSignalsCheck(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "signals", "check", "-f", writeFile(t, dir, "city.yaml", seedYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "1 signal(s), 2 candidate(s)")
	assert.Contains(t, out, "S1")
	assert.Contains(t, out, "green 30s")

	_, err = execute(t, "signals", "check", "-f", writeFile(t, dir, "bad.yaml", "signals:\n  - id: S1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no location")
}

func TestIncidentCreateAndAuditQuery(t *testing.T) {
	dir := t.TempDir()
	seedPath := writeFile(t, dir, "city.yaml", seedYAML)
	cfgFile := writeFile(t, dir, "config.yaml", `
store:
  backend: sqlite
  dsn: `+filepath.Join(dir, "incidents.db")+`
audit:
  backend: jsonl
  path: `+filepath.Join(dir, "audit.jsonl")+`
seed:
  files: ["`+seedPath+`"]
mqtt:
  broker: "tcp://127.0.0.1:1"
`)
	reqFile := writeFile(t, dir, "req.json",
		`{"domain":"medical","type":"fracture","severity":"high","location":{"latitude":12.9716,"longitude":77.5946}}`)

	out, err := execute(t, "-c", cfgFile, "incident", "create", "-f", reqFile)
	require.NoError(t, err)
	var inc model.Incident
	require.NoError(t, json.Unmarshal([]byte(out), &inc))
	assert.Equal(t, model.StatusAssigned, inc.Status)
	require.Len(t, inc.Assignments, 1)

	out, err = execute(t, "-c", cfgFile, "audit", "query", "--incident", inc.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"kind":"dispatch"`)
	assert.Contains(t, out, inc.ID)
}
