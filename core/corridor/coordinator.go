// Package corridor turns a vehicle route into time bounded signal overrides.
// The Network holds signal state; the Coordinator owns corridors, arbitrates
// contention and sweeps expired corridors back to normal cycling.
package corridor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/resqroute/core/events"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/logger"
	"github.com/kilianp07/resqroute/core/metrics"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/monitoring"
	coremqtt "github.com/kilianp07/resqroute/core/mqtt"
)

// Clear reasons.
const (
	ReasonRequested      = "requested"
	ReasonExpired        = "expired"
	ReasonIncidentClosed = "incident_closed"
	ReasonSuperseded     = "superseded"
	ReasonOperator       = "operator"
)

// Request describes a corridor to create.
type Request struct {
	VehicleID   string
	VehicleType string
	IncidentID  string
	Route       []geo.Point
	// Priority overrides the vehicle type priority when positive.
	Priority int
	Duration time.Duration
}

type outbound struct {
	topic   string
	payload []byte
}

// Coordinator manages corridors over a Network.
type Coordinator struct {
	cfg    Config
	net    *Network
	pub    coremqtt.Publisher
	log    logger.Logger
	sink   metrics.CorridorRecorder
	notify events.Publisher
	now    func() time.Time

	mu        sync.Mutex
	corridors map[string]*model.Corridor
	byVehicle map[string]string
	expiries  expiryHeap
	stats     counters
	history   []HistoryEntry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(l logger.Logger) Option { return func(c *Coordinator) { c.log = l } }

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

func WithSink(s metrics.CorridorRecorder) Option { return func(c *Coordinator) { c.sink = s } }

func WithNotifier(p events.Publisher) Option { return func(c *Coordinator) { c.notify = p } }

// NewCoordinator builds a Coordinator. pub may be nil, in which case the
// model is updated but no command leaves the process.
func NewCoordinator(cfg Config, net *Network, pub coremqtt.Publisher, opts ...Option) *Coordinator {
	cfg.SetDefaults()
	c := &Coordinator{
		cfg:       cfg,
		net:       net,
		pub:       pub,
		log:       logger.NopLogger{},
		sink:      metrics.NopSink{},
		notify:    events.Discard{},
		now:       time.Now,
		corridors: map[string]*model.Corridor{},
		byVehicle: map[string]string{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Network exposes the signal store.
func (c *Coordinator) Network() *Network { return c.net }

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// Create geofences req.Route against the network and acquires every signal
// it can. Signals held by a stronger corridor are left out; the corridor is
// created even when it controls none of them.
func (c *Coordinator) Create(ctx context.Context, req Request) (model.Corridor, error) {
	if req.VehicleID == "" || len(req.Route) == 0 {
		return model.Corridor{}, fmt.Errorf("%w: vehicle id and route are required", ErrInvalidRequest)
	}
	now := c.now()
	dur := req.Duration
	if dur <= 0 {
		dur = c.cfg.DefaultDuration
	}
	if dur > c.cfg.MaxLifetime {
		dur = c.cfg.MaxLifetime
	}
	cor := &model.Corridor{
		ID:           "corridor-" + uuid.NewString(),
		VehicleID:    req.VehicleID,
		VehicleType:  req.VehicleType,
		IncidentID:   req.IncidentID,
		Route:        append([]geo.Point(nil), req.Route...),
		Priority:     PriorityFor(req.VehicleType, req.Priority),
		Duration:     dur,
		CreatedAt:    now,
		ExpiresAt:    now.Add(dur),
		MaxExpiresAt: now.Add(c.cfg.MaxLifetime),
		LastUpdate:   now,
		Status:       model.CorridorActive,
	}
	ids := c.net.Within(req.Route, c.cfg.BufferRadiusM)

	c.mu.Lock()
	var out []outbound
	if prevID, ok := c.byVehicle[req.VehicleID]; ok {
		if prev := c.corridors[prevID]; prev != nil && prev.Status == model.CorridorActive {
			out = append(out, c.clearLocked(prev, ReasonSuperseded, now)...)
		}
	}
	for _, id := range ids {
		out = append(out, c.acquireLocked(cor, id, now)...)
	}
	c.corridors[cor.ID] = cor
	c.byVehicle[cor.VehicleID] = cor.ID
	c.schedule(expiry{at: cor.ExpiresAt, corridorID: cor.ID})
	c.stats.Created++
	snap := cor.Clone()
	if p, err := json.Marshal(snap); err == nil {
		out = append(out, outbound{topic: coremqtt.TopicCorridorCreated, payload: p})
	}
	c.mu.Unlock()

	c.send(ctx, out)
	c.log.Infof("corridor %s created for %s %s: %d signal(s), %d denied", snap.ID, snap.VehicleType, snap.VehicleID, len(snap.Signals), len(snap.Denied))
	c.record(metrics.CorridorEvent{CorridorID: snap.ID, VehicleID: snap.VehicleID, Kind: metrics.CorridorCreated, Signals: len(snap.Signals), Denied: len(snap.Denied), Time: now})
	c.notify.Publish(events.Notify{Kind: events.CorridorCreated, CorridorID: snap.ID, VehicleID: snap.VehicleID, IncidentID: snap.IncidentID, Time: now})
	c.notify.Publish(events.Notify{
		Kind:       events.LaneClear,
		CorridorID: snap.ID,
		VehicleID:  snap.VehicleID,
		IncidentID: snap.IncidentID,
		Message:    fmt.Sprintf("emergency %s approaching, clear the lane", snap.VehicleType),
		Time:       now,
	})
	return snap, nil
}

// acquireLocked tries one signal for cor. Must be called with c.mu held.
func (c *Coordinator) acquireLocked(cor *model.Corridor, signalID string, now time.Time) []outbound {
	ov := model.Override{
		CorridorID: cor.ID,
		Action:     model.ActionGreenOverride,
		Priority:   cor.Priority,
		Reason:     "corridor for " + cor.VehicleType,
		IssuedAt:   now,
		ExpiresAt:  cor.ExpiresAt,
	}
	prev, err := c.net.Acquire(signalID, ov, c.cfg.TieBreak, now)
	if err != nil {
		if errors.Is(err, ErrSignalOverrideDenied) {
			c.log.Warnf("corridor %s: %v", cor.ID, err)
			c.stats.Denied++
			overridesDenied.Inc()
		} else {
			c.log.Errorf("corridor %s: acquire %s: %v", cor.ID, signalID, err)
		}
		cor.Denied = appendUnique(cor.Denied, signalID)
		return nil
	}
	cor.Signals = appendUnique(cor.Signals, signalID)
	cor.Denied = remove(cor.Denied, signalID)
	c.historyLocked(HistoryEntry{SignalID: signalID, CorridorID: cor.ID, Action: ov.Action, Priority: ov.Priority, Reason: ov.Reason, Time: now})
	if prev != nil {
		c.evictLocked(*prev, signalID, now)
	}
	return []outbound{c.command(signalID, greenCommand(cor.ID, cor.Priority, cor.ExpiresAt.Sub(now)), now)}
}

// evictLocked removes signalID from the corridor that just lost it.
func (c *Coordinator) evictLocked(prev model.Override, signalID string, now time.Time) {
	c.stats.Evicted++
	loser, ok := c.corridors[prev.CorridorID]
	if !ok {
		return
	}
	loser.Signals = remove(loser.Signals, signalID)
	loser.Denied = appendUnique(loser.Denied, signalID)
	c.log.Warnf("signal %s evicted from corridor %s", signalID, loser.ID)
	c.notify.Publish(events.Notify{Kind: events.SignalEvicted, CorridorID: loser.ID, VehicleID: loser.VehicleID, SignalID: signalID, Time: now})
}

// Update records the vehicle's position and slides the corridor expiry,
// bounded by its maximum lifetime. Signals denied earlier are retried; those
// an operator reset are not. A corridor past its expiry stays expired.
func (c *Coordinator) Update(ctx context.Context, corridorID string, loc geo.Point, etaMinutes int) (model.Corridor, error) {
	now := c.now()
	c.mu.Lock()
	cor, ok := c.corridors[corridorID]
	if !ok {
		c.mu.Unlock()
		return model.Corridor{}, fmt.Errorf("%w: %s", ErrCorridorNotFound, corridorID)
	}
	if cor.Status != model.CorridorActive {
		snap := cor.Clone()
		c.mu.Unlock()
		return snap, fmt.Errorf("%w: %s", ErrCorridorCleared, corridorID)
	}
	if !now.Before(cor.ExpiresAt) {
		snap := cor.Clone()
		c.mu.Unlock()
		return snap, fmt.Errorf("%w: %s at %s", ErrCorridorExpired, corridorID, cor.ExpiresAt.Format(time.RFC3339))
	}
	p := loc
	cor.LastLocation = &p
	cor.ETAMinutes = etaMinutes
	cor.LastUpdate = now
	next := now.Add(cor.Duration)
	if next.After(cor.MaxExpiresAt) {
		next = cor.MaxExpiresAt
	}
	if next.After(cor.ExpiresAt) {
		cor.ExpiresAt = next
		for _, id := range append([]string(nil), cor.Signals...) {
			if !c.net.Extend(id, cor.ID, next) {
				cor.Signals = remove(cor.Signals, id)
			}
		}
		c.schedule(expiry{at: next, corridorID: cor.ID})
	}
	var out []outbound
	for _, id := range append([]string(nil), cor.Denied...) {
		out = append(out, c.acquireLocked(cor, id, now)...)
	}
	snap := cor.Clone()
	c.mu.Unlock()

	c.send(ctx, out)
	c.record(metrics.CorridorEvent{CorridorID: snap.ID, VehicleID: snap.VehicleID, Kind: metrics.CorridorRefreshed, Signals: len(snap.Signals), Denied: len(snap.Denied), Time: now})
	return snap, nil
}

// UpdateForVehicle refreshes the vehicle's active corridor. ok is false when
// the vehicle has none.
func (c *Coordinator) UpdateForVehicle(ctx context.Context, vehicleID string, loc geo.Point, etaMinutes int) (model.Corridor, bool, error) {
	c.mu.Lock()
	id, ok := c.byVehicle[vehicleID]
	c.mu.Unlock()
	if !ok {
		return model.Corridor{}, false, nil
	}
	cor, err := c.Update(ctx, id, loc, etaMinutes)
	return cor, true, err
}

// Clear resets every signal the corridor still holds. Clearing a cleared
// corridor is a no-op.
func (c *Coordinator) Clear(ctx context.Context, corridorID, reason string) (model.Corridor, error) {
	now := c.now()
	c.mu.Lock()
	cor, ok := c.corridors[corridorID]
	if !ok {
		c.mu.Unlock()
		return model.Corridor{}, fmt.Errorf("%w: %s", ErrCorridorNotFound, corridorID)
	}
	if cor.Status != model.CorridorActive {
		snap := cor.Clone()
		c.mu.Unlock()
		return snap, nil
	}
	out := c.clearLocked(cor, reason, now)
	snap := cor.Clone()
	c.mu.Unlock()
	c.send(ctx, out)
	return snap, nil
}

// ClearForVehicle clears the vehicle's active corridor, if any.
func (c *Coordinator) ClearForVehicle(ctx context.Context, vehicleID, reason string) (model.Corridor, error) {
	c.mu.Lock()
	id, ok := c.byVehicle[vehicleID]
	c.mu.Unlock()
	if !ok {
		return model.Corridor{}, fmt.Errorf("%w: no corridor for vehicle %s", ErrCorridorNotFound, vehicleID)
	}
	return c.Clear(ctx, id, reason)
}

// ClearForIncident clears every active corridor opened for incidentID and
// returns their ids.
func (c *Coordinator) ClearForIncident(ctx context.Context, incidentID, reason string) []string {
	now := c.now()
	c.mu.Lock()
	var (
		out []outbound
		ids []string
	)
	for _, cor := range c.corridors {
		if cor.IncidentID == incidentID && cor.Status == model.CorridorActive {
			out = append(out, c.clearLocked(cor, reason, now)...)
			ids = append(ids, cor.ID)
		}
	}
	c.mu.Unlock()
	c.send(ctx, out)
	sort.Strings(ids)
	return ids
}

// clearLocked releases cor's signals and marks it cleared. Must be called
// with c.mu held.
func (c *Coordinator) clearLocked(cor *model.Corridor, reason string, now time.Time) []outbound {
	var out []outbound
	released := make([]string, 0, len(cor.Signals))
	for _, id := range cor.Signals {
		if c.net.Release(id, cor.ID, now) {
			released = append(released, id)
			out = append(out, c.command(id, resetCommand(cor.ID), now))
		}
	}
	at := now
	cor.Signals = nil
	cor.Status = model.CorridorCleared
	cor.ClearedAt = &at
	cor.ClearReason = reason
	if c.byVehicle[cor.VehicleID] == cor.ID {
		delete(c.byVehicle, cor.VehicleID)
	}
	lifetime := now.Sub(cor.CreatedAt)
	c.stats.Cleared++
	c.stats.lifetime += lifetime

	ev := struct {
		CorridorID string    `json:"corridor_id"`
		VehicleID  string    `json:"vehicle_id"`
		Signals    []string  `json:"signals"`
		Reason     string    `json:"reason"`
		Timestamp  time.Time `json:"timestamp"`
	}{cor.ID, cor.VehicleID, released, reason, now}
	if p, err := json.Marshal(ev); err == nil {
		out = append(out, outbound{topic: coremqtt.TopicCorridorCleared, payload: p})
	}
	c.log.Infof("corridor %s cleared (%s), %d signal(s) reset", cor.ID, reason, len(released))
	c.record(metrics.CorridorEvent{CorridorID: cor.ID, VehicleID: cor.VehicleID, Kind: metrics.CorridorCleared, Reason: reason, Signals: len(released), Lifetime: lifetime, Time: now})
	c.notify.Publish(events.Notify{Kind: events.CorridorCleared, CorridorID: cor.ID, VehicleID: cor.VehicleID, IncidentID: cor.IncidentID, Message: reason, Time: now})
	return out
}

// pruneLocked forgets corridors cleared longer than MaxLifetime ago.
func (c *Coordinator) pruneLocked(now time.Time) {
	for id, cor := range c.corridors {
		if cor.ClearedAt != nil && now.Sub(*cor.ClearedAt) > c.cfg.MaxLifetime {
			delete(c.corridors, id)
		}
	}
}

// Get returns one corridor, active or recently cleared.
func (c *Coordinator) Get(id string) (model.Corridor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cor, ok := c.corridors[id]
	if !ok {
		return model.Corridor{}, fmt.Errorf("%w: %s", ErrCorridorNotFound, id)
	}
	return cor.Clone(), nil
}

// Active returns active corridors, oldest first.
func (c *Coordinator) Active() []model.Corridor {
	c.mu.Lock()
	out := make([]model.Corridor, 0, len(c.byVehicle))
	for _, cor := range c.corridors {
		if cor.Status == model.CorridorActive {
			out = append(out, cor.Clone())
		}
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Override installs a manual operator override on one signal.
func (c *Coordinator) Override(ctx context.Context, signalID string, action model.Action, reason string, duration time.Duration, priority int) (model.Override, error) {
	if action == model.ActionResetToNormal {
		return model.Override{}, c.Reset(ctx, signalID)
	}
	if action != model.ActionGreenOverride && action != model.ActionRedHold {
		return model.Override{}, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, action)
	}
	if duration <= 0 {
		duration = time.Minute
	}
	if priority <= 0 {
		priority = c.cfg.OperatorPriority
	}
	if reason == "" {
		reason = "Manual override"
	}
	now := c.now()
	ov := model.Override{
		CorridorID: "operator-" + uuid.NewString(),
		Action:     action,
		Priority:   priority,
		Reason:     reason,
		IssuedAt:   now,
		ExpiresAt:  now.Add(duration),
	}
	c.mu.Lock()
	prev, err := c.net.Acquire(signalID, ov, c.cfg.TieBreak, now)
	if err != nil {
		if errors.Is(err, ErrSignalOverrideDenied) {
			c.stats.Denied++
			overridesDenied.Inc()
		}
		c.mu.Unlock()
		return model.Override{}, err
	}
	if prev != nil {
		c.evictLocked(*prev, signalID, now)
	}
	c.historyLocked(HistoryEntry{SignalID: signalID, CorridorID: ov.CorridorID, Action: action, Priority: priority, Reason: reason, Time: now})
	c.schedule(expiry{at: ov.ExpiresAt, corridorID: ov.CorridorID, signalID: signalID})
	cmd := model.SignalCommand{Action: action, DurationMS: duration.Milliseconds(), Priority: priority, CorridorID: ov.CorridorID}
	out := []outbound{c.command(signalID, cmd, now)}
	c.mu.Unlock()
	c.send(ctx, out)
	c.log.Infof("signal %s overridden: %s for %s (%s)", signalID, action, duration, reason)
	return ov, nil
}

// Reset returns a signal to normal cycling whoever holds it.
func (c *Coordinator) Reset(ctx context.Context, signalID string) error {
	now := c.now()
	c.mu.Lock()
	var owner string
	err := c.net.with(signalID, func(s *model.Signal) error {
		if s.Override != nil {
			owner = s.Override.CorridorID
			s.Override = nil
			s.LastUpdate = now
		}
		return nil
	})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if cor, ok := c.corridors[owner]; ok {
		cor.Signals = remove(cor.Signals, signalID)
		cor.Denied = remove(cor.Denied, signalID)
		cor.Released = appendUnique(cor.Released, signalID)
	}
	out := []outbound{c.command(signalID, resetCommand(owner), now)}
	c.mu.Unlock()
	c.send(ctx, out)
	c.log.Infof("signal %s reset to normal operation", signalID)
	return nil
}

// Broadcast alerts every controller around center.
func (c *Coordinator) Broadcast(ctx context.Context, center geo.Point, radiusM float64, vehicleType string) error {
	if radiusM <= 0 {
		return fmt.Errorf("%w: broadcast radius must be positive", ErrInvalidRequest)
	}
	alert := map[string]any{
		"type":        "EMERGENCY_ALERT",
		"vehicleType": vehicleType,
		"area":        map[string]any{"center": center, "radius": radiusM},
		"timestamp":   c.now().UTC().Format(time.RFC3339Nano),
	}
	p, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	c.log.Warnf("emergency broadcast for %s within %.0fm of %.5f,%.5f", vehicleType, radiusM, center.Lat, center.Lng)
	if c.pub == nil {
		return nil
	}
	return c.pub.Publish(ctx, coremqtt.TopicEmergencyAlert, p)
}

// PublishTracking forwards a vehicle position to the tracking topic.
func (c *Coordinator) PublishTracking(ctx context.Context, vehicleID string, loc geo.Point, etaMinutes int) {
	payload := struct {
		VehicleID string    `json:"vehicleId"`
		Location  geo.Point `json:"location"`
		ETA       int       `json:"eta"`
		Timestamp time.Time `json:"timestamp"`
	}{vehicleID, loc, etaMinutes, c.now()}
	p, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.send(ctx, []outbound{{topic: coremqtt.VehicleTrackingTopic(vehicleID), payload: p}})
}

// Reconcile re-sends the command of every live override, used after the
// broker connection comes back.
func (c *Coordinator) Reconcile(ctx context.Context) int {
	now := c.now()
	var out []outbound
	for _, s := range c.net.Snapshot() {
		if s.Override == nil || s.Override.Expired(now) {
			continue
		}
		o := s.Override
		cmd := model.SignalCommand{Action: o.Action, DurationMS: o.ExpiresAt.Sub(now).Milliseconds(), Priority: o.Priority, CorridorID: o.CorridorID}
		out = append(out, c.command(s.ID, cmd, now))
	}
	c.send(ctx, out)
	return len(out)
}

// command encodes a signal command for signalID.
func (c *Coordinator) command(signalID string, cmd model.SignalCommand, now time.Time) outbound {
	cmd.Command = cmd.Action
	cmd.Timestamp = now.UTC().Format(time.RFC3339Nano)
	cmd.Source = c.cfg.Source
	p, err := json.Marshal(cmd)
	if err != nil {
		c.log.Errorf("encode command for %s: %v", signalID, err)
		return outbound{}
	}
	return outbound{topic: coremqtt.SignalCommandTopic(signalID), payload: p}
}

func greenCommand(corridorID string, priority int, d time.Duration) model.SignalCommand {
	return model.SignalCommand{Action: model.ActionGreenOverride, DurationMS: d.Milliseconds(), Priority: priority, CorridorID: corridorID}
}

func resetCommand(corridorID string) model.SignalCommand {
	return model.SignalCommand{Action: model.ActionResetToNormal, CorridorID: corridorID}
}

// send publishes outside of any lock. Failures are logged; the in-memory
// model stays authoritative.
func (c *Coordinator) send(ctx context.Context, out []outbound) {
	if c.pub == nil {
		return
	}
	for _, o := range out {
		if o.topic == "" {
			continue
		}
		err := c.pub.Publish(ctx, o.topic, o.payload)
		switch {
		case err == nil:
			commandsPublished.WithLabelValues("ok").Inc()
		case errors.Is(err, coremqtt.ErrMessagingUnavailable):
			commandsPublished.WithLabelValues("unavailable").Inc()
			c.log.Errorf("publish %s: %v", o.topic, err)
		default:
			commandsPublished.WithLabelValues("error").Inc()
			c.log.Errorf("publish %s: %v", o.topic, err)
			monitoring.CaptureException(err, map[string]string{"component": "corridor", "topic": o.topic})
		}
	}
}

func (c *Coordinator) record(ev metrics.CorridorEvent) {
	if err := c.sink.RecordCorridor(ev); err != nil {
		c.log.Debugf("record corridor event: %v", err)
	}
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func remove(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
