// Package tracking keeps the last known position of every emergency vehicle
// currently on the move.
package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/resqroute/core/geo"
)

var ErrInvalidReport = errors.New("tracking: vehicle id and location are required")

// Vehicle is the tracked state of one emergency vehicle.
type Vehicle struct {
	ID          string     `json:"id"`
	Type        string     `json:"type,omitempty"`
	IncidentID  string     `json:"incident_id,omitempty"`
	Location    geo.Point  `json:"location"`
	Heading     float64    `json:"heading"`
	SpeedKmh    float64    `json:"speed"`
	Destination *geo.Point `json:"destination,omitempty"`
	ETAMinutes  int        `json:"eta,omitempty"`
	LastUpdate  time.Time  `json:"last_update"`
}

// Report is a location update as sent by vehicles on
// emergency/vehicles/{id}/location. Heading and speed are optional.
type Report struct {
	VehicleID   string     `json:"vehicleId"`
	VehicleType string     `json:"vehicleType,omitempty"`
	Location    geo.Point  `json:"location"`
	Heading     *float64   `json:"heading,omitempty"`
	Speed       *float64   `json:"speed,omitempty"`
	Destination *geo.Point `json:"destination,omitempty"`
	ETA         int        `json:"eta,omitempty"`
}

// ParseReport decodes a location payload. The id from the topic wins when
// the payload omits it.
func ParseReport(topicID string, payload []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, fmt.Errorf("decode location: %w", err)
	}
	if r.VehicleID == "" {
		r.VehicleID = topicID
	}
	if r.VehicleID == "" || r.Location.IsZero() {
		return r, ErrInvalidReport
	}
	return r, nil
}

// Filter narrows List.
type Filter struct {
	Type       string
	IncidentID string
}

type Tracker struct {
	mu   sync.RWMutex
	data map[string]Vehicle
}

func NewTracker() *Tracker {
	return &Tracker{data: map[string]Vehicle{}}
}

// Update applies r at now. Missing heading and speed are derived from the
// previous fix. A report older than the stored one is ignored and the
// stored state is returned with false.
func (t *Tracker) Update(r Report, now time.Time) (Vehicle, bool, error) {
	if r.VehicleID == "" || r.Location.IsZero() {
		return Vehicle{}, false, ErrInvalidReport
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.data[r.VehicleID]
	if seen && now.Before(prev.LastUpdate) {
		return prev, false, nil
	}
	v := prev
	v.ID = r.VehicleID
	if r.VehicleType != "" {
		v.Type = r.VehicleType
	}
	if r.Destination != nil {
		d := *r.Destination
		v.Destination = &d
	}
	v.ETAMinutes = r.ETA
	switch {
	case r.Heading != nil:
		v.Heading = *r.Heading
	case seen && prev.Location != r.Location:
		v.Heading = geo.Bearing(prev.Location, r.Location)
	}
	switch {
	case r.Speed != nil:
		v.SpeedKmh = *r.Speed
	case seen:
		if dt := now.Sub(prev.LastUpdate).Hours(); dt > 0 {
			v.SpeedKmh = geo.DistanceKm(prev.Location, r.Location) / dt
		}
	}
	v.Location = r.Location
	v.LastUpdate = now
	t.data[v.ID] = v
	return v, true, nil
}

// Attach links a vehicle to the incident it serves, creating the entry at
// loc when the vehicle has not reported yet.
func (t *Tracker) Attach(vehicleID, vehicleType, incidentID string, loc geo.Point, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.data[vehicleID]
	if !ok {
		v = Vehicle{ID: vehicleID, Location: loc, LastUpdate: now}
	}
	if vehicleType != "" {
		v.Type = vehicleType
	}
	v.IncidentID = incidentID
	t.data[vehicleID] = v
}

func (t *Tracker) Get(id string) (Vehicle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[id]
	return v, ok
}

// Remove stops tracking a vehicle.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	delete(t.data, id)
	t.mu.Unlock()
}

// List returns tracked vehicles sorted by id.
func (t *Tracker) List(f Filter) []Vehicle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Vehicle, 0, len(t.data))
	for _, v := range t.data {
		if f.Type != "" && v.Type != f.Type {
			continue
		}
		if f.IncidentID != "" && v.IncidentID != f.IncidentID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Prune drops vehicles silent for longer than maxAge and returns their ids.
func (t *Tracker) Prune(maxAge time.Duration, now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var gone []string
	for id, v := range t.data {
		if now.Sub(v.LastUpdate) > maxAge {
			delete(t.data, id)
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	return gone
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}
