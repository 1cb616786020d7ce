package redisclaim

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/registry"
)

func newGuard(t *testing.T) *Guard {
	t.Helper()
	addr := os.Getenv("RESQ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RESQ_TEST_REDIS_ADDR not set; skipping redis claim tests")
	}
	g, err := New(context.Background(), Config{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestAcquireRelease(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()
	cand := "amb-" + uuid.NewString()

	ok, err := g.Acquire(ctx, cand, "MED-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Acquire(ctx, cand, "MED-1")
	require.NoError(t, err)
	assert.True(t, ok, "same incident re-acquires")

	ok, err = g.Acquire(ctx, cand, "MED-2")
	require.NoError(t, err)
	assert.False(t, ok)

	// a foreign release leaves the claim in place
	require.NoError(t, g.Release(ctx, cand, "MED-2"))
	holder, held, err := g.Holder(ctx, cand)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "MED-1", holder)

	require.NoError(t, g.Release(ctx, cand, "MED-1"))
	_, held, err = g.Holder(ctx, cand)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRegistriesShareGuard(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()
	id := "amb-" + uuid.NewString()
	amb := model.Ambulance{Base: model.Base{CandidateID: id, IsActive: true}, FuelLevel: 80}

	// two dispatcher instances with their own in-memory view
	a := registry.NewStore(registry.WithGuard(g))
	b := registry.NewStore(registry.WithGuard(g))
	a.Upsert(amb)
	b.Upsert(amb)

	var (
		wg   sync.WaitGroup
		wins = make(chan string, 2)
	)
	for inst, s := range map[string]*registry.Store{"A": a, "B": b} {
		wg.Add(1)
		go func(inst string, s *registry.Store) {
			defer wg.Done()
			if _, err := s.Claim(ctx, id, "INC-"+inst); err == nil {
				wins <- inst
			}
		}(inst, s)
	}
	wg.Wait()
	close(wins)
	var got []string
	for w := range wins {
		got = append(got, w)
	}
	require.Len(t, got, 1)
	_ = g.Release(ctx, id, "INC-"+got[0])
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 2*time.Hour, c.TTL)
	assert.False(t, c.Enabled())
	c.Addr = "localhost:6379"
	assert.True(t, c.Enabled())
}
