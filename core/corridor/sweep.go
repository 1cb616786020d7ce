package corridor

import (
	"container/heap"
	"context"
	"time"

	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/monitoring"
)

// expiry is a scheduled check. Entries are not removed when a corridor is
// extended; a popped entry older than the corridor's current expiry is skipped.
type expiry struct {
	at         time.Time
	corridorID string
	signalID   string // set for operator overrides
}

type expiryHeap []expiry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(expiry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	e := old[len(old)-1]
	*h = old[:len(old)-1]
	return e
}

// schedule must be called with c.mu held.
func (c *Coordinator) schedule(e expiry) {
	heap.Push(&c.expiries, e)
}

// due pops every entry at or before now. Must be called with c.mu held.
func (c *Coordinator) due(now time.Time) []expiry {
	var out []expiry
	for c.expiries.Len() > 0 && !c.expiries[0].at.After(now) {
		out = append(out, heap.Pop(&c.expiries).(expiry))
	}
	return out
}

// Sweep clears corridors and operator overrides that expired by now and
// returns how many corridors were cleared.
func (c *Coordinator) Sweep(ctx context.Context) int {
	now := c.now()
	c.mu.Lock()
	var out []outbound
	cleared := 0
	for _, e := range c.due(now) {
		if e.signalID != "" {
			if h, ok := c.net.Holder(e.signalID, now); ok && h.CorridorID == e.corridorID {
				continue
			}
			if c.net.Release(e.signalID, e.corridorID, now) {
				out = append(out, c.command(e.signalID, resetCommand(e.corridorID), now))
			}
			continue
		}
		cor, ok := c.corridors[e.corridorID]
		if !ok || cor.Status != model.CorridorActive || cor.ExpiresAt.After(now) {
			continue
		}
		out = append(out, c.clearLocked(cor, ReasonExpired, now)...)
		c.stats.Expired++
		cleared++
	}
	c.pruneLocked(now)
	c.mu.Unlock()
	c.send(ctx, out)
	if cleared > 0 {
		c.log.Infof("sweep cleared %d expired corridor(s)", cleared)
	}
	return cleared
}

// Run sweeps every SweepInterval until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	t := time.NewTicker(c.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.safeSweep(ctx)
		}
	}
}

func (c *Coordinator) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("sweep panic: %v", r)
			monitoring.CapturePanic(r, map[string]string{"component": "corridor"})
		}
	}()
	c.Sweep(ctx)
}
