package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/audit"
	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/registry"
	inframqtt "github.com/kilianp07/resqroute/infra/mqtt"
)

var scene = geo.Point{Lat: 12.9716, Lng: 77.5946}

func north(km float64) geo.Point { return geo.Point{Lat: scene.Lat + km/111.195, Lng: scene.Lng} }

type harness struct {
	srv  *httptest.Server
	orch *dispatch.Orchestrator
}

func newHarness(t *testing.T, token string) harness {
	t.Helper()
	reg := registry.NewStore()
	reg.Upsert(model.Ambulance{
		Base:      model.Base{CandidateID: "amb-1", Position: north(1), IsActive: true},
		Class:     model.ClassALS,
		Equipment: []model.Gear{model.GearStretcher, model.GearOxygen},
		FuelLevel: 90,
	})
	reg.Upsert(model.Hospital{
		Base:                 model.Base{CandidateID: "h-1", Position: north(-2), IsActive: true},
		Government:           true,
		AcceptingEmergencies: true,
		Beds:                 model.Beds{General: 10, ICU: 2, Emergency: 3},
		Facilities:           []model.Facility{model.FacilityEmergencyRoom},
	})
	net := corridor.NewNetwork(model.Cycle{})
	net.Register(model.Signal{ID: "S1", Location: north(0.1)})
	co := corridor.NewCoordinator(corridor.Config{}, net, inframqtt.NewMemoryBus())
	store, err := audit.NewJSONLStore(t.TempDir() + "/audit.jsonl")
	require.NoError(t, err)
	orch, err := dispatch.NewOrchestrator(dispatch.Config{}, reg,
		dispatch.WithCorridors(co), dispatch.WithAudit(store))
	require.NoError(t, err)

	srv := httptest.NewServer(New(orch, co, store, token, nil).Router())
	t.Cleanup(srv.Close)
	return harness{srv: srv, orch: orch}
}

func (h harness) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestRoutes(t *testing.T) {
	h := newHarness(t, "")
	inc, err := h.orch.CreateIncident(context.Background(), dispatch.Request{
		Domain:   model.DomainMedical,
		Type:     model.EmergencyFracture,
		Severity: model.SeverityHigh,
		Origin:   scene,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, h.get(t, "/healthz", "").StatusCode)

	var got model.Incident
	decode(t, h.get(t, "/api/incidents/"+inc.ID, ""), &got)
	assert.Equal(t, inc.ID, got.ID)
	assert.Equal(t, model.StatusAssigned, got.Status)
	assert.Equal(t, http.StatusNotFound, h.get(t, "/api/incidents/MED-NOPE", "").StatusCode)

	var active []model.Incident
	decode(t, h.get(t, "/api/incidents", ""), &active)
	assert.Len(t, active, 1)

	var corridors []model.Corridor
	decode(t, h.get(t, "/api/corridors", ""), &corridors)
	require.Len(t, corridors, 1)
	assert.Equal(t, "amb-1", corridors[0].VehicleID)

	var signals struct {
		Status  corridor.NetworkStatus `json:"status"`
		Signals []model.Signal         `json:"signals"`
	}
	decode(t, h.get(t, "/api/signals", ""), &signals)
	assert.Equal(t, 1, signals.Status.Total)
	assert.Equal(t, 1, signals.Status.Overridden)

	var vehicles []map[string]any
	decode(t, h.get(t, "/api/vehicles", ""), &vehicles)
	require.Len(t, vehicles, 1)
	assert.Equal(t, inc.ID, vehicles[0]["incident_id"])

	var records []audit.Record
	decode(t, h.get(t, "/api/audit?incident_id="+inc.ID, ""), &records)
	require.NotEmpty(t, records)
	assert.Equal(t, audit.KindDispatch, records[0].Kind)

	var st statsResponse
	decode(t, h.get(t, "/api/stats", ""), &st)
	assert.Equal(t, 1, st.Corridors.Created)
	require.Len(t, st.Incidents, 1)
	assert.Equal(t, 1, st.Incidents[0].Incidents)
}

func TestBearerToken(t *testing.T) {
	h := newHarness(t, "s3cret")
	assert.Equal(t, http.StatusOK, h.get(t, "/healthz", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, h.get(t, "/api/corridors", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, h.get(t, "/api/corridors", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, h.get(t, "/api/corridors", "s3cret").StatusCode)
}
