package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/events"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New[events.Notify](0)
	ch := bus.Subscribe()
	bus.Publish(events.Notify{Kind: events.IncidentAssigned, IncidentID: "b1"})
	got := <-ch
	assert.Equal(t, "b1", got.IncidentID)
	bus.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestFullSubscriberCountsDrops(t *testing.T) {
	bus := New[int](1)
	ch := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)
	assert.Equal(t, uint64(2), bus.Dropped())
	assert.Equal(t, 1, <-ch)
}

func TestClose(t *testing.T) {
	bus := New[string](0)
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	require.NotPanics(t, func() { bus.Unsubscribe(ch1) })
	require.NotPanics(t, func() { bus.Publish("late") })
	_, ok = <-bus.Subscribe()
	assert.False(t, ok)
}
