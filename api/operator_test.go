package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/model"
)

func (h harness) send(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func medicalBody() map[string]any {
	return map[string]any{
		"domain":   "medical",
		"type":     model.EmergencyFracture,
		"severity": "high",
		"location": map[string]float64{"latitude": scene.Lat, "longitude": scene.Lng},
	}
}

func TestIncidentActions(t *testing.T) {
	h := newHarness(t, "")

	resp := h.send(t, http.MethodPost, "/api/incidents", medicalBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var inc model.Incident
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inc))
	assert.Equal(t, model.StatusAssigned, inc.Status)

	// the only ambulance is busy now
	resp = h.send(t, http.MethodPost, "/api/incidents", medicalBody())
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var failed model.Incident
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	assert.Equal(t, model.StatusFailed, failed.Status)

	assert.Equal(t, http.StatusBadRequest,
		h.send(t, http.MethodPost, "/api/incidents", map[string]any{"domain": "medical", "bogus": 1}).StatusCode)

	path := "/api/incidents/" + inc.ID
	assert.Equal(t, http.StatusOK,
		h.send(t, http.MethodPost, path+"/status", statusRequest{Status: model.StatusEnRoute, Note: "rolling"}).StatusCode)
	assert.Equal(t, http.StatusConflict,
		h.send(t, http.MethodPost, path+"/status", statusRequest{Status: model.StatusPending}).StatusCode)
	assert.Equal(t, http.StatusNotFound,
		h.send(t, http.MethodPost, "/api/incidents/MED-NOPE/status", statusRequest{Status: model.StatusEnRoute}).StatusCode)

	assert.Equal(t, http.StatusConflict,
		h.send(t, http.MethodPost, path+"/rating", map[string]float64{"rating": 4}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		h.send(t, http.MethodPost, path+"/rating", map[string]float64{"rating": 9}).StatusCode)
}

func TestSignalAndCorridorActions(t *testing.T) {
	h := newHarness(t, "")
	resp := h.send(t, http.MethodPost, "/api/incidents", medicalBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var inc model.Incident
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inc))
	require.Len(t, inc.CorridorIDs, 1)

	resp = h.send(t, http.MethodPost, "/api/signals/S1/override",
		overrideRequest{Action: model.ActionRedHold, Reason: "parade", Duration: "30s", Priority: 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ov model.Override
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ov))
	assert.Equal(t, model.ActionRedHold, ov.Action)
	assert.Equal(t, "parade", ov.Reason)

	assert.Equal(t, http.StatusBadRequest,
		h.send(t, http.MethodPost, "/api/signals/S1/override", overrideRequest{Action: model.ActionRedHold, Duration: "soon"}).StatusCode)
	assert.Equal(t, http.StatusNotFound,
		h.send(t, http.MethodPost, "/api/signals/S9/override", overrideRequest{Action: model.ActionRedHold}).StatusCode)
	assert.Equal(t, http.StatusNoContent, h.send(t, http.MethodDelete, "/api/signals/S1/override", nil).StatusCode)

	var history []corridor.HistoryEntry
	decode(t, h.get(t, "/api/signals/history", ""), &history)
	var reasons []string
	for _, e := range history {
		reasons = append(reasons, e.Reason)
	}
	assert.Contains(t, reasons, "parade")

	assert.Equal(t, http.StatusAccepted,
		h.send(t, http.MethodPost, "/api/alerts", alertRequest{Center: scene, RadiusM: 800, VehicleType: "AMBULANCE"}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		h.send(t, http.MethodPost, "/api/alerts", alertRequest{Center: scene}).StatusCode)

	resp = h.send(t, http.MethodDelete, "/api/corridors/"+inc.CorridorIDs[0], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cor model.Corridor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cor))
	assert.Equal(t, model.CorridorCleared, cor.Status)
	assert.Equal(t, http.StatusNotFound, h.send(t, http.MethodDelete, "/api/corridors/COR-NOPE", nil).StatusCode)
}
