package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/kilianp07/resqroute/core/mqtt"
	"github.com/kilianp07/resqroute/test/util"
)

func TestPahoBusAgainstMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	defer cleanup()

	sub, err := NewPahoBus(Config{Broker: broker, ClientID: "sub"})
	require.NoError(t, err)
	defer sub.Disconnect()
	pub, err := NewPahoBus(Config{Broker: broker, ClientID: "pub"})
	require.NoError(t, err)
	defer pub.Disconnect()

	var mu sync.Mutex
	got := map[string]string{}
	require.NoError(t, sub.Subscribe(coremqtt.TopicSignalStatus, func(topic string, payload []byte) {
		mu.Lock()
		got[topic] = string(payload)
		mu.Unlock()
	}))
	// subscription is acknowledged before publishing
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, pub.Publish(ctx, "traffic/signals/S7/status", []byte(`{"state":"GREEN","status":"ONLINE"}`)))
	waitCtx, wcancel := context.WithTimeout(ctx, 5*time.Second)
	defer wcancel()
	require.NoError(t, util.WaitFor(waitCtx, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}))
	mu.Lock()
	assert.Equal(t, `{"state":"GREEN","status":"ONLINE"}`, got["traffic/signals/S7/status"])
	mu.Unlock()
	assert.Zero(t, pub.Pending())
}
