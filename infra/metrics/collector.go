package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/resqroute/core/events"
	"github.com/kilianp07/resqroute/internal/eventbus"
)

// NotifyCounter counts notify intents by kind.
func NotifyCounter(reg prometheus.Registerer) (*prometheus.CounterVec, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_events_total",
		Help: "Notify intents published on the event bus",
	}, []string{"kind"}))
}

// StartEventCollector subscribes to the event bus and counts every intent.
// It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Notify], counter *prometheus.CounterVec) {
	if bus == nil || counter == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				counter.WithLabelValues(string(ev.Kind)).Inc()
			}
		}
	}()
}
