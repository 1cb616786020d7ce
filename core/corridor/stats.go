package corridor

import (
	"time"

	"github.com/kilianp07/resqroute/core/model"
)

type counters struct {
	Created  int
	Cleared  int
	Expired  int
	Denied   int
	Evicted  int
	lifetime time.Duration
}

// HistoryEntry is one granted override.
type HistoryEntry struct {
	SignalID   string       `json:"signal_id"`
	CorridorID string       `json:"corridor_id"`
	Action     model.Action `json:"action"`
	Priority   int          `json:"priority"`
	Reason     string       `json:"reason"`
	Time       time.Time    `json:"time"`
}

// Stats summarises coordinator activity since start.
type Stats struct {
	Created         int            `json:"created"`
	Cleared         int            `json:"cleared"`
	Expired         int            `json:"expired"`
	DeniedOverrides int            `json:"denied_overrides"`
	Evicted         int            `json:"evicted"`
	Active          int            `json:"active"`
	AverageLifetime time.Duration  `json:"average_lifetime"`
	TotalOverrides  int            `json:"total_overrides"`
	Last24h         int            `json:"last_24h"`
	ByReason        map[string]int `json:"by_reason"`
	Network         NetworkStatus  `json:"network"`
}

// historyLocked appends e, dropping the oldest entries past HistorySize.
func (c *Coordinator) historyLocked(e HistoryEntry) {
	c.history = append(c.history, e)
	if over := len(c.history) - c.cfg.HistorySize; over > 0 {
		c.history = append(c.history[:0], c.history[over:]...)
	}
}

// History returns granted overrides, oldest first.
func (c *Coordinator) History() []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]HistoryEntry(nil), c.history...)
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() Stats {
	now := c.now()
	c.mu.Lock()
	st := Stats{
		Created:         c.stats.Created,
		Cleared:         c.stats.Cleared,
		Expired:         c.stats.Expired,
		DeniedOverrides: c.stats.Denied,
		Evicted:         c.stats.Evicted,
		TotalOverrides:  len(c.history),
		ByReason:        map[string]int{},
	}
	for _, cor := range c.corridors {
		if cor.Status == model.CorridorActive {
			st.Active++
		}
	}
	if c.stats.Cleared > 0 {
		st.AverageLifetime = c.stats.lifetime / time.Duration(c.stats.Cleared)
	}
	for _, h := range c.history {
		st.ByReason[h.Reason]++
		if now.Sub(h.Time) < 24*time.Hour {
			st.Last24h++
		}
	}
	c.mu.Unlock()
	st.Network = c.net.Status(now)
	return st
}
