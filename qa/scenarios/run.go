package scenarios

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/registry"
	"github.com/kilianp07/resqroute/infra/logger"
	"github.com/kilianp07/resqroute/infra/mqtt"
)

// RunScenario replays sc step by step and checks every expectation.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	dispatch.ResetMetrics(prometheus.NewRegistry())

	reg := registry.NewStore()
	sc.Fleet.ApplyFleet(reg)
	net := corridor.NewNetwork(model.Cycle{})
	sc.Fleet.ApplySignals(net)
	co := corridor.NewCoordinator(corridor.Config{}, net, mqtt.NewMemoryBus())
	orch, err := dispatch.NewOrchestrator(dispatch.Config{}, reg,
		dispatch.WithCorridors(co),
		dispatch.WithLogger(logger.NopLogger{}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	ids := map[int]string{}
	for i, st := range sc.Steps {
		var inc *model.Incident
		var err error
		switch {
		case st.Incident != nil:
			req := st.Incident.ToRequest()
			if st.Incident.Count > 1 {
				inc, err = orch.DispatchMassCasualty(ctx, req, st.Incident.Count)
			} else {
				inc, err = orch.CreateIncident(ctx, req)
			}
			if inc != nil {
				ids[i] = inc.ID
			}
		case st.Transition != nil:
			inc, err = orch.Transition(ctx, ids[st.Transition.Step], model.Status(st.Transition.To), "scenario", nil)
		case st.Disable != "":
			err = disable(reg, st.Disable)
		}
		check(t, i, st.Expect, co, inc, err)
	}
}

func check(t *testing.T, step int, exp *Expected, co *corridor.Coordinator, inc *model.Incident, err error) {
	t.Helper()
	if exp == nil {
		require.NoError(t, err, "step %d", step)
		return
	}
	switch {
	case exp.Invalid:
		assert.ErrorIs(t, err, dispatch.ErrInvalidRequest, "step %d", step)
		return
	case exp.NoResource:
		assert.ErrorIs(t, err, dispatch.ErrNoResourceAvailable, "step %d", step)
	default:
		require.NoError(t, err, "step %d", step)
	}
	if inc == nil {
		return
	}
	if exp.Status != "" {
		assert.Equal(t, model.Status(exp.Status), inc.Status, "step %d status", step)
	}
	if exp.Units != nil {
		assert.Equal(t, exp.Units, inc.CandidateIDs(), "step %d units", step)
	}
	if exp.Station != "" {
		assert.Equal(t, exp.Station, inc.StationID, "step %d station", step)
	}
	if exp.Corridors != nil {
		assert.Len(t, co.Active(), *exp.Corridors, "step %d active corridors", step)
	}
}

// disable takes a candidate out of service.
func disable(reg *registry.Store, id string) error {
	c, err := reg.Get(id)
	if err != nil {
		return err
	}
	b, err := model.BaseOf(c)
	if err != nil {
		return err
	}
	b.IsActive = false
	c, err = model.WithBase(c, b)
	if err != nil {
		return errors.Join(errors.New("disable "+id), err)
	}
	reg.Upsert(c)
	return nil
}
