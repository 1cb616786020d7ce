package corridor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/events"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
	coremqtt "github.com/kilianp07/resqroute/core/mqtt"
)

type published struct {
	topic   string
	payload []byte
}

type recordPub struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordPub) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic, payload})
	return nil
}

func (p *recordPub) commands(signalID string) []model.SignalCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.SignalCommand
	for _, m := range p.msgs {
		if m.topic != coremqtt.SignalCommandTopic(signalID) {
			continue
		}
		var c model.SignalCommand
		if err := json.Unmarshal(m.payload, &c); err == nil {
			out = append(out, c)
		}
	}
	return out
}

func (p *recordPub) topics(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if strings.HasPrefix(m.topic, prefix) {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type notifyRec struct {
	mu  sync.Mutex
	got []events.Notify
}

func (n *notifyRec) Publish(e events.Notify) {
	n.mu.Lock()
	n.got = append(n.got, e)
	n.mu.Unlock()
}

func (n *notifyRec) kinds(k events.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.got {
		if e.Kind == k {
			c++
		}
	}
	return c
}

// signalAt places signal i about 1.09km east of signal i-1.
func signalAt(i int) geo.Point { return geo.Point{Lat: 12, Lng: 77 + float64(i)*0.01} }

func route(from, to int) []geo.Point {
	var r []geo.Point
	for i := from; i <= to; i++ {
		r = append(r, signalAt(i))
	}
	return r
}

type fixture struct {
	co    *Coordinator
	net   *Network
	pub   *recordPub
	clock *fakeClock
	note  *notifyRec
}

func newFixture(t *testing.T, mutate func(*Config)) fixture {
	t.Helper()
	net := NewNetwork(model.Cycle{})
	for i := 1; i <= 5; i++ {
		net.Register(model.Signal{ID: fmt.Sprintf("S%d", i), Location: signalAt(i)})
	}
	cfg := Config{DefaultDuration: 2 * time.Minute, MaxLifetime: 5 * time.Minute}
	if mutate != nil {
		mutate(&cfg)
	}
	f := fixture{net: net, pub: &recordPub{}, clock: &fakeClock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}, note: &notifyRec{}}
	f.co = NewCoordinator(cfg, net, f.pub, WithClock(f.clock.Now), WithNotifier(f.note))
	return f
}

func TestPartialCorridorWhenSignalHeldByStronger(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fire, err := f.co.Create(ctx, Request{VehicleID: "FT-1", VehicleType: "FIRE_TRUCK", Route: route(3, 3)})
	require.NoError(t, err)
	require.Equal(t, []string{"S3"}, fire.Signals)

	police, err := f.co.Create(ctx, Request{VehicleID: "P-1", VehicleType: "POLICE", Route: route(1, 5)})
	require.NoError(t, err)
	assert.Len(t, police.Signals, 4)
	assert.ElementsMatch(t, []string{"S1", "S2", "S4", "S5"}, police.Signals)
	assert.Equal(t, []string{"S3"}, police.Denied)

	h, ok := f.net.Holder("S3", f.clock.Now())
	require.True(t, ok)
	assert.Equal(t, fire.ID, h.CorridorID)

	n := 0
	for _, c := range f.co.Active() {
		if c.ID == police.ID {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Len(t, f.co.Active(), 2)
	assert.Equal(t, 1, f.co.Stats().DeniedOverrides)
	assert.Empty(t, f.pub.commands("S3")[1:], "S3 only got the fire truck command")
}

func TestHigherPriorityDisplacesHolder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	police, err := f.co.Create(ctx, Request{VehicleID: "P-1", VehicleType: "POLICE", Route: route(1, 5)})
	require.NoError(t, err)
	amb, err := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "ambulance", Route: route(2, 3)})
	require.NoError(t, err)
	assert.Equal(t, 10, amb.Priority)
	assert.Equal(t, []string{"S2", "S3"}, amb.Signals)

	police, err = f.co.Get(police.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"S1", "S4", "S5"}, police.Signals)
	assert.ElementsMatch(t, []string{"S2", "S3"}, police.Denied)
	assert.Equal(t, 2, f.note.kinds(events.SignalEvicted))

	// clearing the loser must not touch signals it lost
	_, err = f.co.Clear(ctx, police.ID, ReasonRequested)
	require.NoError(t, err)
	h, ok := f.net.Holder("S2", f.clock.Now())
	require.True(t, ok)
	assert.Equal(t, amb.ID, h.CorridorID)
}

func TestTieBreakPolicies(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil)
	first, _ := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(1, 1)})
	second, _ := f.co.Create(ctx, Request{VehicleID: "A-2", VehicleType: "AMBULANCE", Route: route(1, 1)})
	h, _ := f.net.Holder("S1", f.clock.Now())
	assert.Equal(t, second.ID, h.CorridorID)
	assert.NotEqual(t, first.ID, h.CorridorID)

	f = newFixture(t, func(c *Config) { c.TieBreak = IncumbentWins })
	first, _ = f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(1, 1)})
	second, _ = f.co.Create(ctx, Request{VehicleID: "A-2", VehicleType: "AMBULANCE", Route: route(1, 1)})
	h, _ = f.net.Holder("S1", f.clock.Now())
	assert.Equal(t, first.ID, h.CorridorID)
	assert.Equal(t, []string{"S1"}, second.Denied)
}

func TestCreateClearRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cor, err := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", IncidentID: "inc-1", Route: route(1, 5)})
	require.NoError(t, err)
	require.Len(t, cor.Signals, 5)

	cleared, err := f.co.Clear(ctx, cor.ID, ReasonRequested)
	require.NoError(t, err)
	assert.Equal(t, model.CorridorCleared, cleared.Status)
	assert.Empty(t, cleared.Signals)
	for _, s := range f.net.Snapshot() {
		assert.Nil(t, s.Override, s.ID)
		cmds := f.pub.commands(s.ID)
		require.Len(t, cmds, 2)
		assert.Equal(t, model.ActionGreenOverride, cmds[0].Action)
		assert.Equal(t, model.ActionResetToNormal, cmds[1].Command)
	}

	again, err := f.co.Clear(ctx, cor.ID, ReasonRequested)
	require.NoError(t, err)
	assert.Equal(t, model.CorridorCleared, again.Status)
	assert.Equal(t, 1, f.pub.topics(coremqtt.TopicCorridorCleared))
	assert.Empty(t, f.co.Active())

	_, err = f.co.Clear(ctx, "nope", ReasonRequested)
	assert.ErrorIs(t, err, ErrCorridorNotFound)
}

func TestSweepClearsExpiredCorridor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cor, err := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(1, 5)})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	assert.Equal(t, 0, f.co.Sweep(ctx))

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, f.co.Sweep(ctx))
	for _, s := range f.net.Snapshot() {
		assert.Nil(t, s.Override)
		cmds := f.pub.commands(s.ID)
		assert.Equal(t, model.ActionResetToNormal, cmds[len(cmds)-1].Action)
	}
	got, _ := f.co.Get(cor.ID)
	assert.Equal(t, ReasonExpired, got.ClearReason)
	assert.Equal(t, 1, f.co.Stats().Expired)

	// a late position report does not bring it back
	_, err = f.co.Update(ctx, cor.ID, signalAt(2), 3)
	assert.ErrorIs(t, err, ErrCorridorCleared)
	assert.Empty(t, f.co.Active())
}

func TestUpdateSlidesExpiryUpToMaxLifetime(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	t0 := f.clock.Now()
	cor, err := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(1, 2)})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	cor, err = f.co.Update(ctx, cor.ID, signalAt(1), 4)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(3*time.Minute), cor.ExpiresAt)
	h, _ := f.net.Holder("S1", f.clock.Now())
	assert.Equal(t, cor.ExpiresAt, h.ExpiresAt)

	f.clock.Advance(150 * time.Second)
	cor, _, err = f.co.UpdateForVehicle(ctx, "A-1", signalAt(2), 1)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(5*time.Minute), cor.ExpiresAt)
	assert.Equal(t, 1, cor.ETAMinutes)

	f.clock.Advance(30 * time.Second)
	assert.Equal(t, 0, f.co.Sweep(ctx))
	f.clock.Advance(time.Minute)
	assert.Equal(t, 1, f.co.Sweep(ctx))
}

func TestUpdateAfterExpiryLeavesCorridorToSweep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cor, err := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(1, 3)})
	require.NoError(t, err)

	// report lands on the expiry instant, before any sweep ran
	f.clock.Advance(2 * time.Minute)
	got, err := f.co.Update(ctx, cor.ID, signalAt(2), 1)
	require.ErrorIs(t, err, ErrCorridorExpired)
	assert.Equal(t, cor.ExpiresAt, got.ExpiresAt)
	_, ok, err := f.co.UpdateForVehicle(ctx, "A-1", signalAt(2), 1)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrCorridorExpired)

	assert.Equal(t, 1, f.co.Sweep(ctx))
	got, _ = f.co.Get(cor.ID)
	assert.Equal(t, ReasonExpired, got.ClearReason)
}

func TestOperatorResetSurvivesRefresh(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cor, err := f.co.Create(ctx, Request{VehicleID: "P-1", VehicleType: "POLICE", Route: route(1, 2)})
	require.NoError(t, err)
	require.Len(t, cor.Signals, 2)

	require.NoError(t, f.co.Reset(ctx, "S1"))
	cor, _ = f.co.Get(cor.ID)
	assert.Equal(t, []string{"S2"}, cor.Signals)
	assert.Equal(t, []string{"S1"}, cor.Released)
	assert.Empty(t, cor.Denied)

	f.clock.Advance(30 * time.Second)
	cor, err = f.co.Update(ctx, cor.ID, signalAt(1), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, cor.Signals)
	_, held := f.net.Holder("S1", f.clock.Now())
	assert.False(t, held)
	assert.Equal(t, model.ActionResetToNormal, lastAction(f.pub, "S1"))
}

func lastAction(p *recordPub, signalID string) model.Action {
	cmds := p.commands(signalID)
	if len(cmds) == 0 {
		return ""
	}
	return cmds[len(cmds)-1].Action
}

func TestUpdateRetriesDeniedSignals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	fire, _ := f.co.Create(ctx, Request{VehicleID: "FT-1", VehicleType: "FIRE_TRUCK", Route: route(3, 3)})
	police, _ := f.co.Create(ctx, Request{VehicleID: "P-1", VehicleType: "POLICE", Route: route(1, 5)})
	require.Len(t, police.Denied, 1)

	_, err := f.co.Clear(ctx, fire.ID, ReasonRequested)
	require.NoError(t, err)
	police, err = f.co.Update(ctx, police.ID, signalAt(1), 5)
	require.NoError(t, err)
	assert.Len(t, police.Signals, 5)
	assert.Empty(t, police.Denied)
}

func TestNewCorridorSupersedesVehiclesPrevious(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first, _ := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(1, 2)})
	second, _ := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(4, 5)})
	got, _ := f.co.Get(first.ID)
	assert.Equal(t, ReasonSuperseded, got.ClearReason)
	_, ok := f.net.Holder("S1", f.clock.Now())
	assert.False(t, ok)
	active := f.co.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestClearForIncident(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a, _ := f.co.Create(ctx, Request{VehicleID: "FT-1", VehicleType: "FIRE_TRUCK", IncidentID: "fire-1", Route: route(1, 2)})
	b, _ := f.co.Create(ctx, Request{VehicleID: "FT-2", VehicleType: "FIRE_TRUCK", IncidentID: "fire-1", Route: route(4, 5)})
	f.co.Create(ctx, Request{VehicleID: "A-9", VehicleType: "AMBULANCE", IncidentID: "other", Route: route(3, 3)})

	ids := f.co.ClearForIncident(ctx, "fire-1", ReasonIncidentClosed)
	want := []string{a.ID, b.ID}
	assert.ElementsMatch(t, want, ids)
	assert.Len(t, f.co.Active(), 1)
}

func TestMessagingUnavailableKeepsModel(t *testing.T) {
	f := newFixture(t, nil)
	f.pub.err = coremqtt.ErrMessagingUnavailable
	cor, err := f.co.Create(context.Background(), Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(1, 5)})
	require.NoError(t, err)
	assert.Len(t, cor.Signals, 5)
	assert.Equal(t, 5, f.net.Status(f.clock.Now()).Overridden)
}

func TestReconcileAfterReconnect(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.co.Create(ctx, Request{VehicleID: "A-1", VehicleType: "AMBULANCE", Route: route(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, 2, f.co.Reconcile(ctx))
	assert.Len(t, f.pub.commands("S1"), 2)

	require.NoError(t, f.co.HandleSignalStatus(ctx, "S1", []byte(`{"state":"RED","status":"OFFLINE"}`)))
	require.NoError(t, f.co.HandleSignalStatus(ctx, "S1", []byte(`{"state":"GREEN","status":"ONLINE"}`)))
	assert.Len(t, f.pub.commands("S1"), 3)
	s, _ := f.net.Get("S1")
	assert.Equal(t, model.StateGreen, s.State)

	assert.ErrorIs(t, f.co.HandleSignalStatus(ctx, "S99", []byte(`{}`)), ErrSignalNotFound)
	assert.Error(t, f.co.HandleSignalStatus(ctx, "S1", []byte(`{`)))
}

func TestHandleCorridorRequest(t *testing.T) {
	f := newFixture(t, nil)
	payload := `{"vehicleId":"A-7","vehicleType":"AMBULANCE","route":{"coordinates":[{"latitude":12,"longitude":77.01},{"latitude":12,"longitude":77.02}]},"estimatedDuration":90000}`
	cor, err := f.co.HandleCorridorRequest(context.Background(), []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, cor.Signals)
	assert.Equal(t, 90*time.Second, cor.Duration)

	_, err = f.co.HandleCorridorRequest(context.Background(), []byte(`{"vehicleId":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestOperatorOverrideAndReset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ov, err := f.co.Override(ctx, "S1", model.ActionRedHold, "parade", 30*time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, ov.Priority)

	cor, _ := f.co.Create(ctx, Request{VehicleID: "P-1", VehicleType: "POLICE", Route: route(1, 2)})
	assert.Equal(t, []string{"S1"}, cor.Denied)

	f.clock.Advance(31 * time.Second)
	f.co.Sweep(ctx)
	_, ok := f.net.Holder("S1", f.clock.Now())
	assert.False(t, ok)

	require.NoError(t, f.co.Reset(ctx, "S2"))
	cor, _ = f.co.Get(cor.ID)
	assert.Empty(t, cor.Signals)

	st := f.co.Stats()
	assert.Equal(t, 1, st.ByReason["parade"])
	assert.Equal(t, 2, st.Last24h)

	_, err = f.co.Override(ctx, "S1", "BLINK", "", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, f.co.Reset(ctx, "S42"), ErrSignalNotFound)
}

func TestBroadcastAndTracking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.co.Broadcast(ctx, signalAt(1), 1000, "AMBULANCE"))
	assert.Error(t, f.co.Broadcast(ctx, signalAt(1), 0, "AMBULANCE"))
	f.co.PublishTracking(ctx, "A-1", signalAt(2), 4)
	assert.Equal(t, 1, f.pub.topics(coremqtt.TopicEmergencyAlert))
	assert.Equal(t, 1, f.pub.topics(coremqtt.VehicleTrackingTopic("A-1")))
}

func TestConcurrentCreateKeepsStrongestHolder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for p := 1; p <= 12; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, err := f.co.Create(ctx, Request{VehicleID: fmt.Sprintf("V-%d", p), Route: route(1, 5), Priority: p})
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()
	for _, s := range f.net.Snapshot() {
		require.NotNil(t, s.Override)
		assert.Equal(t, 12, s.Override.Priority, s.ID)
	}
	for _, c := range f.co.Active() {
		for _, id := range c.Signals {
			h, ok := f.net.Holder(id, f.clock.Now())
			require.True(t, ok)
			assert.Equal(t, c.ID, h.CorridorID)
		}
	}
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, 10, PriorityFor("ambulance", 0))
	assert.Equal(t, 8, PriorityFor("POLICE", 0))
	assert.Equal(t, 3, PriorityFor("PUBLIC_TRANSPORT", 0))
	assert.Equal(t, 1, PriorityFor("bicycle", 0))
	assert.Equal(t, 7, PriorityFor("AMBULANCE", 7))
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 500.0, c.BufferRadiusM)
	c.TieBreak = "coin_flip"
	assert.Error(t, c.Validate())
}
