// Package dispatch matches incidents to vehicles and facilities, claims the
// winners and drives the incident lifecycle. Corridors are requested for every
// dispatched vehicle and cleared once the incident closes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/resqroute/core/audit"
	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/events"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/incident"
	"github.com/kilianp07/resqroute/core/logger"
	"github.com/kilianp07/resqroute/core/metrics"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/monitoring"
	"github.com/kilianp07/resqroute/core/registry"
	"github.com/kilianp07/resqroute/core/scoring"
	"github.com/kilianp07/resqroute/core/tracking"
)

// Corridors is the part of the corridor coordinator used here.
type Corridors interface {
	Create(ctx context.Context, req corridor.Request) (model.Corridor, error)
	ClearForIncident(ctx context.Context, incidentID, reason string) []string
	UpdateForVehicle(ctx context.Context, vehicleID string, loc geo.Point, etaMinutes int) (model.Corridor, bool, error)
	PublishTracking(ctx context.Context, vehicleID string, loc geo.Point, etaMinutes int)
}

type Orchestrator struct {
	cfg       Config
	engine    *scoring.Engine
	cands     Candidates
	repo      IncidentRepository
	machine   *incident.Machine
	corridors Corridors
	tracker   *tracking.Tracker
	audit     audit.Store
	sink      metrics.MetricsSink
	notify    events.Publisher
	log       logger.Logger
	now       func() time.Time

	locksMu sync.Mutex
	locks   map[string]*incidentLock
}

type incidentLock struct {
	sync.Mutex
	refs int
}

type Option func(*Orchestrator)

func WithLogger(l logger.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithClock replaces the wall clock, for the state machine too.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithRepository(r IncidentRepository) Option { return func(o *Orchestrator) { o.repo = r } }

func WithCorridors(c Corridors) Option { return func(o *Orchestrator) { o.corridors = c } }

func WithTracker(t *tracking.Tracker) Option { return func(o *Orchestrator) { o.tracker = t } }

func WithAudit(s audit.Store) Option { return func(o *Orchestrator) { o.audit = s } }

func WithSink(s metrics.MetricsSink) Option { return func(o *Orchestrator) { o.sink = s } }

func WithNotifier(p events.Publisher) Option { return func(o *Orchestrator) { o.notify = p } }

// NewOrchestrator creates an orchestrator over cands. Without options it uses
// an in-memory repository and discards audit, metrics and notify output.
func NewOrchestrator(cfg Config, cands Candidates, opts ...Option) (*Orchestrator, error) {
	if cands == nil {
		return nil, fmt.Errorf("dispatch: nil candidate registry")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:     cfg,
		engine:  scoring.NewEngine(cfg.Scoring),
		cands:   cands,
		repo:    NewMemoryRepository(),
		tracker: tracking.NewTracker(),
		audit:   audit.Discard{},
		sink:    metrics.NopSink{},
		notify:  events.Discard{},
		log:     logger.NopLogger{},
		now:     time.Now,
		locks:   map[string]*incidentLock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.machine = incident.NewMachineWithClock(o.now)
	return o, nil
}

func (o *Orchestrator) Config() Config                 { return o.cfg }
func (o *Orchestrator) Engine() *scoring.Engine        { return o.engine }
func (o *Orchestrator) Tracker() *tracking.Tracker     { return o.tracker }
func (o *Orchestrator) Repository() IncidentRepository { return o.repo }

// lock serialises work on one incident. The entry is dropped once nobody
// holds or waits for it.
func (o *Orchestrator) lock(id string) func() {
	o.locksMu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &incidentLock{}
		o.locks[id] = l
	}
	l.refs++
	o.locksMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		o.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(o.locks, id)
		}
		o.locksMu.Unlock()
	}
}

func (o *Orchestrator) heldLocks() int {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	return len(o.locks)
}

// attempt collects what a dispatch run learnt for metrics and audit.
type attempt struct {
	conflicts int
	scores    map[string]float64
}

func (a *attempt) keep(ranked []scoring.Ranked) {
	if a.scores == nil {
		a.scores = make(map[string]float64, len(ranked))
	}
	for _, r := range ranked {
		a.scores[r.ID] = r.Score
	}
}

func newIncidentID(d model.Domain) string {
	prefix := "MED"
	if d == model.DomainFire {
		prefix = "FIRE"
	}
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}

// CreateIncident opens an incident for req and dispatches it. When nothing
// can be claimed the incident is stored as failed and returned together with
// ErrNoResourceAvailable.
func (o *Orchestrator) CreateIncident(ctx context.Context, req Request) (*model.Incident, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := o.checkSelectedHospital(req); err != nil {
		return nil, err
	}
	inc := o.open(req, req.Note)
	unlock := o.lock(inc.ID)
	defer unlock()

	var (
		att attempt
		err error
	)
	start := o.now()
	switch req.Domain {
	case model.DomainFire:
		err = o.dispatchFire(ctx, inc, req, &att)
	default:
		err = o.dispatchMedical(ctx, inc, req, &att)
	}
	return o.finish(ctx, inc, start, &att, err)
}

// DispatchMassCasualty claims up to count distinct ambulances for one
// medical incident. Fewer units than requested is not an error.
func (o *Orchestrator) DispatchMassCasualty(ctx context.Context, req Request, count int) (*model.Incident, error) {
	req.Domain = model.DomainMedical
	if count <= 0 {
		return nil, fmt.Errorf("%w: unit count must be positive", ErrInvalidRequest)
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if err := o.checkSelectedHospital(req); err != nil {
		return nil, err
	}
	note := req.Note
	if note == "" {
		note = fmt.Sprintf("mass casualty: %d units requested", count)
	}
	inc := o.open(req, note)
	unlock := o.lock(inc.ID)
	defer unlock()

	var att attempt
	start := o.now()
	err := o.dispatchMass(ctx, inc, req, count, &att)
	return o.finish(ctx, inc, start, &att, err)
}

func (o *Orchestrator) open(req Request, note string) *model.Incident {
	inc := &model.Incident{
		ID:            newIncidentID(req.Domain),
		Domain:        req.Domain,
		Reporter:      req.Reporter,
		Type:          req.Type,
		Severity:      req.Severity,
		Origin:        req.Origin,
		PeopleTrapped: req.PeopleTrapped,
	}
	if req.Domain == model.DomainMedical {
		inc.HospitalPreference = req.HospitalPreference
	}
	o.machine.Open(inc, note)
	return inc
}

func (o *Orchestrator) checkSelectedHospital(req Request) error {
	if req.Domain != model.DomainMedical || req.SelectedHospital == "" {
		return nil
	}
	c, err := o.cands.Get(req.SelectedHospital)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, ok := c.(model.Hospital); !ok {
		return fmt.Errorf("%w: %s is not a hospital", ErrInvalidRequest, req.SelectedHospital)
	}
	return nil
}

func (o *Orchestrator) dispatchMedical(ctx context.Context, inc *model.Incident, req Request, att *attempt) error {
	if err := o.machine.Transition(inc, model.StatusSearching, "matching ambulance and hospital", nil); err != nil {
		return err
	}
	sctx := scoring.Context{Domain: model.DomainMedical, Severity: inc.Severity, EmergencyType: inc.Type, Origin: inc.Origin}
	hosp, err := o.selectHospital(sctx, req)
	if err != nil {
		return err
	}
	o.setDestination(inc, hosp)
	dest := hosp.Location()
	sctx.Destination = &dest

	ranked := o.engine.Rank(sctx, o.cands.QueryActive(registry.Filter{Kind: model.KindAmbulance}))
	att.keep(ranked)
	got := o.claim(ctx, inc.ID, ranked, 1, att)
	if len(got) == 0 {
		return fmt.Errorf("%w: no ambulance for %s", ErrNoResourceAvailable, inc.ID)
	}
	amb := got[0]
	if a, ok := amb.Candidate.(model.Ambulance); ok && !scoring.CanHandle(a, inc.Severity, inc.Type) {
		o.log.Warnf("incident %s: %s is the best unit left but not fit for a %s %s call", inc.ID, amb.ID, inc.Severity, inc.Type)
	}
	pickup := geo.ETABetween(amb.Candidate.Location(), inc.Origin, o.cfg.TrafficFactor)
	inc.PickupETA = &pickup
	inc.Assignments = []model.Assignment{o.assignment(amb, "")}

	note := fmt.Sprintf("ambulance %s assigned, hospital %s", amb.ID, hosp.ID())
	if err := o.machine.Transition(inc, model.StatusAssigned, note, nil); err != nil {
		o.releaseAll(ctx, inc, false)
		return err
	}
	o.tracker.Attach(amb.ID, corridor.VehicleAmbulance, inc.ID, amb.Candidate.Location(), o.now())
	o.openCorridor(ctx, inc, amb.ID, corridor.VehicleAmbulance, routeFor(req.Route, amb.Candidate.Location(), inc.Origin, dest))
	o.notify.Publish(events.Notify{
		Kind:       events.IncidentAssigned,
		IncidentID: inc.ID,
		Units:      inc.CandidateIDs(),
		ETAMinutes: pickup.Minutes,
		Message:    fmt.Sprintf("Your ambulance will arrive in %d minutes", pickup.Minutes),
		Time:       o.now(),
	})
	return nil
}

func (o *Orchestrator) dispatchMass(ctx context.Context, inc *model.Incident, req Request, count int, att *attempt) error {
	if err := o.machine.Transition(inc, model.StatusSearching, "matching ambulances", nil); err != nil {
		return err
	}
	sctx := scoring.Context{Domain: model.DomainMedical, Severity: inc.Severity, EmergencyType: inc.Type, Origin: inc.Origin}
	if o.cfg.MassCasualty.Context != MassCasualtyActual {
		sctx.Severity = o.cfg.MassCasualty.Severity
		sctx.EmergencyType = o.cfg.MassCasualty.EmergencyType
	}
	var dest *geo.Point
	if hosp, err := o.selectHospital(sctx, req); err == nil {
		o.setDestination(inc, hosp)
		d := hosp.Location()
		dest = &d
		sctx.Destination = dest
	} else {
		o.log.Warnf("mass casualty %s dispatched without hospital: %v", inc.ID, err)
	}

	ranked := o.engine.Rank(sctx, o.cands.QueryActive(registry.Filter{Kind: model.KindAmbulance}))
	att.keep(ranked)
	got := o.claim(ctx, inc.ID, ranked, count, att)
	if len(got) == 0 {
		return fmt.Errorf("%w: no ambulance for %s", ErrNoResourceAvailable, inc.ID)
	}
	if len(got) < count {
		o.log.Warnf("mass casualty %s: %d of %d ambulances available", inc.ID, len(got), count)
	}
	for i, r := range got {
		inc.Assignments = append(inc.Assignments, o.assignment(r, fmt.Sprintf("Unit %d", i+1)))
	}
	first := geo.ETABetween(got[0].Candidate.Location(), inc.Origin, o.cfg.TrafficFactor)
	inc.PickupETA = &first

	note := fmt.Sprintf("%d ambulance(s) assigned", len(got))
	if err := o.machine.Transition(inc, model.StatusAssigned, note, nil); err != nil {
		o.releaseAll(ctx, inc, false)
		return err
	}
	for _, r := range got {
		route := []geo.Point{r.Candidate.Location(), inc.Origin}
		if dest != nil {
			route = append(route, *dest)
		}
		o.tracker.Attach(r.ID, corridor.VehicleAmbulance, inc.ID, r.Candidate.Location(), o.now())
		o.openCorridor(ctx, inc, r.ID, corridor.VehicleAmbulance, routeFor(req.Route, route...))
	}
	o.notify.Publish(events.Notify{
		Kind:       events.IncidentAssigned,
		IncidentID: inc.ID,
		Units:      inc.CandidateIDs(),
		ETAMinutes: first.Minutes,
		Message:    fmt.Sprintf("%d ambulance(s) are on the way", len(got)),
		Time:       o.now(),
	})
	return nil
}

// selectHospital honours an explicit selection, otherwise ranks hospitals
// matching the preference.
func (o *Orchestrator) selectHospital(sctx scoring.Context, req Request) (model.Hospital, error) {
	if req.SelectedHospital != "" {
		c, err := o.cands.Get(req.SelectedHospital)
		if err != nil {
			return model.Hospital{}, err
		}
		h, _ := c.(model.Hospital)
		if !model.Eligible(h) || !scoring.CanAccept(h, sctx.Severity) {
			return model.Hospital{}, fmt.Errorf("%w: hospital %s cannot accept the patient", ErrNoResourceAvailable, h.ID())
		}
		return h, nil
	}
	var pool []model.Candidate
	for _, c := range o.cands.QueryActive(registry.Filter{Kind: model.KindHospital}) {
		h, ok := c.(model.Hospital)
		if !ok {
			continue
		}
		if req.HospitalPreference == PreferGovernment && !h.Government {
			continue
		}
		if req.HospitalPreference == PreferPrivate && h.Government {
			continue
		}
		pool = append(pool, h)
	}
	best, ok := scoring.Best(o.engine.Rank(sctx, pool))
	if !ok {
		return model.Hospital{}, fmt.Errorf("%w: no %s hospital available nearby", ErrNoResourceAvailable, req.HospitalPreference)
	}
	return best.Candidate.(model.Hospital), nil
}

func (o *Orchestrator) setDestination(inc *model.Incident, h model.Hospital) {
	dest := h.Location()
	inc.Destination = &dest
	inc.DestinationID = h.ID()
	eta := geo.ETABetween(inc.Origin, dest, o.cfg.TrafficFactor)
	inc.DestinationETA = &eta
	if h.Government {
		inc.EstimatedCost = 0
	} else {
		inc.EstimatedCost = o.cfg.PrivateDefaultCost
	}
}

func (o *Orchestrator) dispatchFire(ctx context.Context, inc *model.Incident, req Request, att *attempt) error {
	sctx := scoring.Context{
		Domain:        model.DomainFire,
		Severity:      inc.Severity,
		EmergencyType: inc.Type,
		Origin:        inc.Origin,
		RequiredTypes: scoring.RequiredTruckTypes(inc.Type, inc.PeopleTrapped),
		Stations:      o.cands.Stations(),
	}
	stations := o.engine.Rank(sctx, o.cands.QueryActive(registry.Filter{Kind: model.KindFireStation}))
	if len(stations) == 0 {
		return fmt.Errorf("%w: no fire station within %.0f km", ErrNoResourceAvailable, o.engine.Config().StationRadiusKm)
	}
	if len(stations) > o.cfg.StationLimit {
		stations = stations[:o.cfg.StationLimit]
	}
	trucks := o.cands.QueryActive(registry.Filter{Kind: model.KindFireTruck})
	want := scoring.TrucksFor(inc.Severity)
	for _, st := range stations {
		var pool []model.Candidate
		for _, c := range trucks {
			if t, ok := c.(model.FireTruck); ok && t.StationID == st.ID {
				pool = append(pool, t)
			}
		}
		ranked := o.engine.Rank(sctx, pool)
		att.keep(ranked)
		got := o.claimPlan(ctx, inc.ID, ranked, want, sctx.RequiredTypes, att)
		if len(got) == 0 {
			o.log.Debugf("station %s has no capable unit for %s", st.ID, inc.ID)
			continue
		}
		if len(got) < want {
			o.log.Warnf("incident %s: station %s sent %d of %d units", inc.ID, st.ID, len(got), want)
		}
		return o.assignFire(ctx, inc, req, st.ID, got)
	}
	return fmt.Errorf("%w: no fire trucks available for %s", ErrNoResourceAvailable, inc.ID)
}

func (o *Orchestrator) assignFire(ctx context.Context, inc *model.Incident, req Request, stationID string, units []scoring.PlanEntry) error {
	inc.StationID = stationID
	if err := o.cands.AdjustStationLoad(stationID, 1); err != nil {
		o.log.Warnf("station %s load: %v", stationID, err)
	}
	for _, u := range units {
		inc.Assignments = append(inc.Assignments, o.assignment(u.Ranked, u.Role))
	}
	lead := geo.ETABetween(units[0].Candidate.Location(), inc.Origin, o.cfg.TrafficFactor)
	inc.PickupETA = &lead

	note := fmt.Sprintf("%d unit(s) dispatched from station %s", len(units), stationID)
	if err := o.machine.Transition(inc, incident.AssignedStatus(inc.Domain), note, nil); err != nil {
		o.releaseAll(ctx, inc, false)
		_ = o.cands.AdjustStationLoad(stationID, -1)
		return err
	}
	for _, u := range units {
		o.tracker.Attach(u.ID, corridor.VehicleFireTruck, inc.ID, u.Candidate.Location(), o.now())
		o.openCorridor(ctx, inc, u.ID, corridor.VehicleFireTruck, routeFor(req.Route, u.Candidate.Location(), inc.Origin))
	}
	o.notify.Publish(events.Notify{
		Kind:       events.IncidentAssigned,
		IncidentID: inc.ID,
		Units:      inc.CandidateIDs(),
		ETAMinutes: lead.Minutes,
		Message:    fmt.Sprintf("%d fire truck(s) are on the way", len(units)),
		Time:       o.now(),
	})
	return nil
}

// claim walks ranked in order and claims up to n units. Lost races move on
// to the next candidate until the ranking is exhausted; other claim errors
// count against ClaimAttempts.
func (o *Orchestrator) claim(ctx context.Context, incidentID string, ranked []scoring.Ranked, n int, att *attempt) []scoring.Ranked {
	var (
		got      []scoring.Ranked
		failures int
	)
	for _, r := range ranked {
		if len(got) == n || failures >= o.cfg.ClaimAttempts || ctx.Err() != nil {
			break
		}
		c, err := o.cands.Claim(ctx, r.ID, incidentID)
		if err != nil {
			if errors.Is(err, registry.ErrClaimConflict) {
				att.conflicts++
				claimConflicts.Inc()
				o.log.Debugf("claim of %s for %s lost: %v", r.ID, incidentID, err)
			} else {
				failures++
				o.log.Warnf("claim of %s for %s failed: %v", r.ID, incidentID, err)
			}
			continue
		}
		r.Candidate = c
		got = append(got, r)
	}
	return got
}

// claimPlan claims a fire plan of n trucks. Units lost to other incidents
// are replaced from the rest of the ranking and roles are assigned last.
func (o *Orchestrator) claimPlan(ctx context.Context, incidentID string, ranked []scoring.Ranked, n int, required []model.TruckType, att *attempt) []scoring.PlanEntry {
	plan := scoring.Plan(ranked, n, required)
	tried := make(map[string]struct{}, len(plan))
	var got []scoring.Ranked
	for _, p := range plan {
		tried[p.ID] = struct{}{}
		got = append(got, o.claim(ctx, incidentID, []scoring.Ranked{p.Ranked}, 1, att)...)
	}
	if len(got) < n {
		var rest []scoring.Ranked
		for _, r := range ranked {
			if _, ok := tried[r.ID]; !ok {
				rest = append(rest, r)
			}
		}
		got = append(got, o.claim(ctx, incidentID, rest, n-len(got), att)...)
	}
	return scoring.Plan(got, len(got), required)
}

func (o *Orchestrator) assignment(r scoring.Ranked, role string) model.Assignment {
	return model.Assignment{
		CandidateID: r.ID,
		Kind:        r.Candidate.Kind(),
		Role:        role,
		Score:       r.Score,
		DistanceKm:  r.DistanceKm,
		AssignedAt:  o.now(),
	}
}

func routeFor(custom []geo.Point, pts ...geo.Point) []geo.Point {
	if len(custom) > 0 {
		return custom
	}
	return pts
}

// openCorridor requests a corridor for one vehicle. Failure leaves the
// dispatch in place.
func (o *Orchestrator) openCorridor(ctx context.Context, inc *model.Incident, vehicleID, vehicleType string, route []geo.Point) {
	if o.corridors == nil {
		return
	}
	cor, err := o.corridors.Create(ctx, corridor.Request{VehicleID: vehicleID, VehicleType: vehicleType, IncidentID: inc.ID, Route: route})
	if err != nil {
		o.log.Warnf("corridor for %s on %s: %v", vehicleID, inc.ID, err)
		return
	}
	inc.CorridorIDs = append(inc.CorridorIDs, cor.ID)
}

// finish marks unsuccessful dispatches failed, persists the incident and
// records the attempt.
func (o *Orchestrator) finish(ctx context.Context, inc *model.Incident, start time.Time, att *attempt, err error) (*model.Incident, error) {
	outcome := metrics.OutcomeAssigned
	switch {
	case err == nil:
	case errors.Is(err, ErrNoResourceAvailable):
		outcome = metrics.OutcomeNoResource
		o.log.Warnf("incident %s: %v", inc.ID, err)
		o.fail(inc, err.Error())
		o.notify.Publish(events.Notify{Kind: events.IncidentNoResource, IncidentID: inc.ID, Message: err.Error(), Time: o.now()})
	default:
		outcome = metrics.OutcomeError
		o.log.Errorf("incident %s dispatch failed: %v", inc.ID, err)
		monitoring.CaptureException(err, map[string]string{"module": "dispatch", "incident": inc.ID})
		o.fail(inc, err.Error())
	}
	if perr := o.repo.Persist(ctx, inc); perr != nil {
		o.log.Errorf("persist incident %s: %v", inc.ID, perr)
		monitoring.CaptureException(perr, map[string]string{"module": "dispatch", "incident": inc.ID})
		if err == nil {
			o.rollback(ctx, inc)
			outcome = metrics.OutcomeError
		}
		err = fmt.Errorf("persist incident %s: %w", inc.ID, perr)
	}

	latency := o.now().Sub(start)
	domain := string(inc.Domain)
	dispatchOutcomes.WithLabelValues(domain, outcome).Inc()
	if outcome == metrics.OutcomeAssigned {
		dispatchLatency.WithLabelValues(domain).Observe(latency.Seconds())
		activeIncidents.WithLabelValues(domain).Inc()
		o.log.Infof("incident %s dispatched: %s", inc.ID, strings.Join(inc.CandidateIDs(), ","))
	}
	if serr := o.sink.RecordDispatch(metrics.DispatchEvent{
		IncidentID: inc.ID,
		Domain:     domain,
		Severity:   string(inc.Severity),
		Outcome:    outcome,
		Units:      inc.CandidateIDs(),
		Conflicts:  att.conflicts,
		Latency:    latency,
		Time:       o.now(),
	}); serr != nil {
		o.log.Errorf("metrics sink error: %v", serr)
	}
	rec := audit.NewRecord(audit.KindDispatch, o.now())
	rec.IncidentID = inc.ID
	rec.Domain = domain
	rec.Outcome = outcome
	rec.Units = inc.CandidateIDs()
	rec.Scores = att.scores
	rec.To = string(inc.Status)
	if err != nil {
		rec.Note = err.Error()
	}
	o.appendAudit(ctx, rec)
	return inc, err
}

func (o *Orchestrator) fail(inc *model.Incident, note string) {
	if inc.Status.Terminal() {
		return
	}
	if err := o.machine.Transition(inc, model.StatusFailed, note, nil); err != nil {
		o.log.Errorf("mark %s failed: %v", inc.ID, err)
	}
}

func (o *Orchestrator) appendAudit(ctx context.Context, rec audit.Record) {
	if err := o.audit.Append(ctx, rec); err != nil {
		o.log.Errorf("audit append: %v", err)
	}
}

// rollback undoes a dispatch that could not be stored: nothing may stay
// claimed or green for an incident no one can load.
func (o *Orchestrator) rollback(ctx context.Context, inc *model.Incident) {
	if o.corridors != nil {
		o.corridors.ClearForIncident(ctx, inc.ID, corridor.ReasonIncidentClosed)
	}
	inc.CorridorIDs = nil
	o.releaseAll(ctx, inc, false)
	if inc.StationID != "" {
		if err := o.cands.AdjustStationLoad(inc.StationID, -1); err != nil {
			o.log.Warnf("station %s load: %v", inc.StationID, err)
		}
	}
	o.fail(inc, "incident could not be stored")
}

// releaseAll returns every assigned unit to the pool.
func (o *Orchestrator) releaseAll(ctx context.Context, inc *model.Incident, completed bool) {
	for _, a := range inc.Assignments {
		if err := o.cands.Release(ctx, a.CandidateID, inc.ID, completed); err != nil {
			o.log.Warnf("release %s from %s: %v", a.CandidateID, inc.ID, err)
		}
		o.tracker.Remove(a.CandidateID)
	}
}
