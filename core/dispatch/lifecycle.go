package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/resqroute/core/audit"
	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/events"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/metrics"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/registry"
	"github.com/kilianp07/resqroute/core/tracking"
)

// Get loads an incident by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.Incident, error) {
	return o.repo.Load(ctx, id)
}

// Active lists incidents not yet in a terminal status.
func (o *Orchestrator) Active(ctx context.Context) ([]*model.Incident, error) {
	return o.repo.ListActive(ctx)
}

// All lists every incident when the repository supports it, otherwise only
// the active ones.
func (o *Orchestrator) All(ctx context.Context) ([]*model.Incident, error) {
	if l, ok := o.repo.(IncidentLister); ok {
		return l.List(ctx)
	}
	return o.repo.ListActive(ctx)
}

// Transition moves an incident to status to at the current time.
func (o *Orchestrator) Transition(ctx context.Context, id string, to model.Status, note string, loc *geo.Point) (*model.Incident, error) {
	return o.transition(ctx, id, to, note, loc, time.Time{})
}

// TransitionAt applies a transition stamped by the field unit. Stale
// timestamps are rejected.
func (o *Orchestrator) TransitionAt(ctx context.Context, id string, to model.Status, note string, loc *geo.Point, at time.Time) (*model.Incident, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp", ErrInvalidRequest)
	}
	return o.transition(ctx, id, to, note, loc, at)
}

func (o *Orchestrator) transition(ctx context.Context, id string, to model.Status, note string, loc *geo.Point, at time.Time) (*model.Incident, error) {
	unlock := o.lock(id)
	defer unlock()

	inc, err := o.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := inc.Status
	if at.IsZero() {
		err = o.machine.Transition(inc, to, note, loc)
	} else {
		err = o.machine.TransitionAt(inc, to, note, loc, at)
	}
	if err != nil {
		return nil, err
	}
	if to == model.StatusCancelled {
		inc.CancellationReason = note
	}
	// stored first: a failed write must not free units the stored
	// incident still holds
	if err := o.repo.Persist(ctx, inc); err != nil {
		return nil, fmt.Errorf("persist incident %s: %w", id, err)
	}
	if to.Terminal() {
		o.closeOut(ctx, inc)
	}
	o.log.Infof("incident %s: %s -> %s", id, from, to)

	now := o.now()
	if err := o.sink.RecordTransition(metrics.TransitionEvent{
		IncidentID: id,
		Domain:     string(inc.Domain),
		From:       string(from),
		To:         string(to),
		Time:       now,
	}); err != nil {
		o.log.Errorf("metrics sink error: %v", err)
	}
	rec := audit.NewRecord(audit.KindTransition, now)
	rec.IncidentID = id
	rec.Domain = string(inc.Domain)
	rec.From = string(from)
	rec.To = string(to)
	rec.Units = inc.CandidateIDs()
	rec.Note = note
	o.appendAudit(ctx, rec)
	o.notify.Publish(events.Notify{
		Kind:       events.IncidentStatus,
		IncidentID: id,
		Status:     string(to),
		Units:      inc.CandidateIDs(),
		Location:   loc,
		Message:    note,
		Time:       now,
	})
	return inc, nil
}

// closeOut frees everything an incident holds once it is terminal.
func (o *Orchestrator) closeOut(ctx context.Context, inc *model.Incident) {
	if o.corridors != nil {
		if ids := o.corridors.ClearForIncident(ctx, inc.ID, corridor.ReasonIncidentClosed); len(ids) > 0 {
			o.log.Debugf("incident %s cleared corridors %v", inc.ID, ids)
		}
	}
	o.releaseAll(ctx, inc, inc.Status == model.StatusCompleted)
	if inc.StationID != "" {
		if err := o.cands.AdjustStationLoad(inc.StationID, -1); err != nil {
			o.log.Warnf("station %s load: %v", inc.StationID, err)
		}
	}
	if len(inc.Assignments) > 0 {
		activeIncidents.WithLabelValues(string(inc.Domain)).Dec()
	}
}

// Rate records the reporter's 1..5 rating of a completed incident and
// folds it into every assigned unit's average.
func (o *Orchestrator) Rate(ctx context.Context, id string, rating float64) (*model.Incident, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidRequest)
	}
	unlock := o.lock(id)
	defer unlock()

	inc, err := o.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status != model.StatusCompleted || inc.Rating != 0 {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRateable, id, inc.Status)
	}
	inc.Rating = rating
	for _, a := range inc.Assignments {
		if err := o.cands.Rate(a.CandidateID, rating); err != nil {
			o.log.Warnf("rate %s: %v", a.CandidateID, err)
		}
	}
	if err := o.repo.Persist(ctx, inc); err != nil {
		return nil, fmt.Errorf("persist incident %s: %w", id, err)
	}
	rec := audit.NewRecord(audit.KindRating, o.now())
	rec.IncidentID = id
	rec.Domain = string(inc.Domain)
	rec.Units = inc.CandidateIDs()
	rec.Note = fmt.Sprintf("rating %.1f", rating)
	o.appendAudit(ctx, rec)
	return inc, nil
}

// ReportLocation ingests a vehicle location report. The registry position,
// the vehicle's corridor and tracking subscribers all follow the report.
func (o *Orchestrator) ReportLocation(ctx context.Context, r tracking.Report) (tracking.Vehicle, error) {
	now := o.now()
	v, fresh, err := o.tracker.Update(r, now)
	if err != nil || !fresh {
		return v, err
	}
	if err := o.cands.UpdateLocation(v.ID, v.Location); err != nil && !errors.Is(err, registry.ErrCandidateNotFound) {
		o.log.Warnf("update location of %s: %v", v.ID, err)
	}
	if o.corridors != nil {
		switch _, ok, err := o.corridors.UpdateForVehicle(ctx, v.ID, v.Location, v.ETAMinutes); {
		case errors.Is(err, corridor.ErrCorridorExpired):
			o.log.Infof("corridor of %s lapsed before this report", v.ID)
		case err != nil:
			o.log.Warnf("corridor update for %s: %v", v.ID, err)
		case ok:
			o.log.Debugf("corridor of %s follows %.5f,%.5f", v.ID, v.Location.Lat, v.Location.Lng)
		}
		o.corridors.PublishTracking(ctx, v.ID, v.Location, v.ETAMinutes)
	}
	loc := v.Location
	o.notify.Publish(events.Notify{
		Kind:       events.VehicleTracking,
		IncidentID: v.IncidentID,
		VehicleID:  v.ID,
		Location:   &loc,
		ETAMinutes: v.ETAMinutes,
		Time:       now,
	})
	return v, nil
}

// ReportVehicleLocation is ReportLocation for callers holding only a position.
func (o *Orchestrator) ReportVehicleLocation(ctx context.Context, vehicleID string, loc geo.Point, etaMinutes int) error {
	_, err := o.ReportLocation(ctx, tracking.Report{VehicleID: vehicleID, Location: loc, ETA: etaMinutes})
	return err
}
