package corridor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
)

// StatusReport is the feedback payload published by signal controllers.
type StatusReport struct {
	State  model.SignalState `json:"state"`
	Status model.LinkStatus  `json:"status"`
}

// HandleSignalStatus applies a status report. A controller that comes back
// online is sent its current override again.
func (c *Coordinator) HandleSignalStatus(ctx context.Context, signalID string, payload []byte) error {
	var r StatusReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("decode status for %s: %w", signalID, err)
	}
	now := c.now()
	back, err := c.net.UpdateStatus(signalID, r.State, r.Status, now)
	if err != nil {
		return err
	}
	c.log.Debugw("signal status", map[string]any{"signal": signalID, "state": r.State, "status": r.Status})
	if !back {
		return nil
	}
	if h, ok := c.net.Holder(signalID, now); ok {
		cmd := model.SignalCommand{Action: h.Action, DurationMS: h.ExpiresAt.Sub(now).Milliseconds(), Priority: h.Priority, CorridorID: h.CorridorID}
		c.send(ctx, []outbound{c.command(signalID, cmd, now)})
		c.log.Infof("signal %s back online, override re-sent", signalID)
	}
	return nil
}

// CorridorRequest is the payload of emergency/corridor/{id}/request.
type CorridorRequest struct {
	VehicleID   string `json:"vehicleId"`
	VehicleType string `json:"vehicleType"`
	IncidentID  string `json:"incidentId,omitempty"`
	Route       struct {
		Coordinates []geo.Point `json:"coordinates"`
	} `json:"route"`
	Priority   int   `json:"priority,omitempty"`
	DurationMS int64 `json:"estimatedDuration,omitempty"`
}

// Request converts the payload.
func (r CorridorRequest) Request() Request {
	return Request{
		VehicleID:   r.VehicleID,
		VehicleType: r.VehicleType,
		IncidentID:  r.IncidentID,
		Route:       r.Route.Coordinates,
		Priority:    r.Priority,
		Duration:    time.Duration(r.DurationMS) * time.Millisecond,
	}
}

// HandleCorridorRequest creates a corridor from a bus request.
func (c *Coordinator) HandleCorridorRequest(ctx context.Context, payload []byte) (model.Corridor, error) {
	var r CorridorRequest
	if err := json.Unmarshal(payload, &r); err != nil {
		return model.Corridor{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return c.Create(ctx, r.Request())
}
