package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/incident"
	"github.com/kilianp07/resqroute/core/model"
)

const maxBody = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrIncidentNotFound),
		errors.Is(err, corridor.ErrSignalNotFound),
		errors.Is(err, corridor.ErrCorridorNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrInvalidRequest),
		errors.Is(err, corridor.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, incident.ErrInvalidTransition),
		errors.Is(err, incident.ErrStaleTimestamp),
		errors.Is(err, dispatch.ErrNotRateable),
		errors.Is(err, corridor.ErrSignalOverrideDenied):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Errorf("%s: %v", op, err)
	}
	http.Error(w, err.Error(), code)
}

// handleCreateIncident answers 201 on assignment and 409 with the failed
// incident when nothing could be sent.
func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if !decodeBody(w, r, &req) {
		return
	}
	inc, err := s.orch.CreateIncident(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, inc)
	case errors.Is(err, dispatch.ErrNoResourceAvailable) && inc != nil:
		writeJSON(w, http.StatusConflict, inc)
	default:
		s.fail(w, "create incident", err)
	}
}

type statusRequest struct {
	Status   model.Status `json:"status"`
	Note     string       `json:"note"`
	Location *geo.Point   `json:"location,omitempty"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	inc, err := s.orch.Transition(r.Context(), chi.URLParam(r, "id"), body.Status, body.Note, body.Location)
	if err != nil {
		s.fail(w, "transition", err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rating float64 `json:"rating"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	inc, err := s.orch.Rate(r.Context(), chi.URLParam(r, "id"), body.Rating)
	if err != nil {
		s.fail(w, "rate", err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type overrideRequest struct {
	Action   model.Action `json:"action"`
	Reason   string       `json:"reason"`
	Duration string       `json:"duration"`
	Priority int          `json:"priority"`
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var body overrideRequest
	if !decodeBody(w, r, &body) {
		return
	}
	var d time.Duration
	if body.Duration != "" {
		var err error
		if d, err = time.ParseDuration(body.Duration); err != nil {
			http.Error(w, fmt.Sprintf("bad duration %q", body.Duration), http.StatusBadRequest)
			return
		}
	}
	ov, err := s.corridors.Override(r.Context(), chi.URLParam(r, "id"), body.Action, body.Reason, d, body.Priority)
	if err != nil {
		s.fail(w, "override", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.corridors.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCorridor(w http.ResponseWriter, r *http.Request) {
	cor, err := s.corridors.Clear(r.Context(), chi.URLParam(r, "id"), corridor.ReasonOperator)
	if err != nil {
		s.fail(w, "clear corridor", err)
		return
	}
	writeJSON(w, http.StatusOK, cor)
}

type alertRequest struct {
	Center      geo.Point `json:"center"`
	RadiusM     float64   `json:"radius_m"`
	VehicleType string    `json:"vehicle_type"`
}

func (s *Server) handleAlert(w http.ResponseWriter, r *http.Request) {
	var body alertRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.corridors.Broadcast(r.Context(), body.Center, body.RadiusM, body.VehicleType); err != nil {
		s.fail(w, "broadcast", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
