package corridor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
)

type slot struct {
	mu  sync.Mutex
	sig model.Signal
}

// Network is the signal store. Every mutation of one signal happens under
// that signal's own lock.
type Network struct {
	mu      sync.RWMutex
	signals map[string]*slot
	cycle   model.Cycle
}

// NewNetwork returns an empty network. Signals registered without a timing
// plan get cycle.
func NewNetwork(cycle model.Cycle) *Network {
	if cycle == (model.Cycle{}) {
		cycle = model.DefaultCycle
	}
	return &Network{signals: map[string]*slot{}, cycle: cycle}
}

// Register adds or replaces a signal. An existing override is kept.
func (n *Network) Register(s model.Signal) model.Signal {
	if s.State == "" {
		s.State = model.StateRed
	}
	if s.Status == "" {
		s.Status = model.Online
	}
	if s.Cycle == (model.Cycle{}) {
		s.Cycle = n.cycle
	}
	if s.LastUpdate.IsZero() {
		s.LastUpdate = time.Now()
	}
	n.mu.Lock()
	sl, ok := n.signals[s.ID]
	if !ok {
		n.signals[s.ID] = &slot{sig: s}
		n.mu.Unlock()
		return s
	}
	n.mu.Unlock()
	sl.mu.Lock()
	s.Override = sl.sig.Override
	sl.sig = s
	sl.mu.Unlock()
	return s
}

func (n *Network) slot(id string) (*slot, error) {
	n.mu.RLock()
	sl, ok := n.signals[id]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, id)
	}
	return sl, nil
}

func (n *Network) slots() []*slot {
	n.mu.RLock()
	out := make([]*slot, 0, len(n.signals))
	for _, sl := range n.signals {
		out = append(out, sl)
	}
	n.mu.RUnlock()
	return out
}

func (n *Network) with(id string, fn func(*model.Signal) error) error {
	sl, err := n.slot(id)
	if err != nil {
		return err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return fn(&sl.sig)
}

// Get returns a copy of one signal.
func (n *Network) Get(id string) (model.Signal, error) {
	var out model.Signal
	err := n.with(id, func(s *model.Signal) error {
		out = copySignal(*s)
		return nil
	})
	return out, err
}

// Snapshot returns every signal ordered by id.
func (n *Network) Snapshot() []model.Signal {
	sls := n.slots()
	out := make([]model.Signal, 0, len(sls))
	for _, sl := range sls {
		sl.mu.Lock()
		out = append(out, copySignal(sl.sig))
		sl.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of registered signals.
func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.signals)
}

// Within returns the ids of signals within radiusM metres of any route
// point, in the order the route reaches them.
func (n *Network) Within(route []geo.Point, radiusM float64) []string {
	all := n.Snapshot()
	seen := map[string]bool{}
	var ids []string
	for _, p := range route {
		for _, s := range all {
			if seen[s.ID] {
				continue
			}
			if geo.WithinRadius(s.Location, p, radiusM) {
				seen[s.ID] = true
				ids = append(ids, s.ID)
			}
		}
	}
	return ids
}

// Acquire installs ov on signal id unless a live holder wins. A holder wins
// with strictly higher priority, or equal priority under IncumbentWins.
// The evicted override, if any, is returned.
func (n *Network) Acquire(id string, ov model.Override, tie TieBreak, now time.Time) (*model.Override, error) {
	var prev *model.Override
	err := n.with(id, func(s *model.Signal) error {
		cur := s.Override
		if cur != nil && !cur.Expired(now) && cur.CorridorID != ov.CorridorID {
			if cur.Priority > ov.Priority || (cur.Priority == ov.Priority && tie == IncumbentWins) {
				return fmt.Errorf("%w: %s held by %s (priority %d >= %d)", ErrSignalOverrideDenied, id, cur.CorridorID, cur.Priority, ov.Priority)
			}
			c := *cur
			prev = &c
		}
		o := ov
		s.Override = &o
		s.LastUpdate = now
		return nil
	})
	return prev, err
}

// Extend moves the expiry of owner's override on id. It returns false when
// owner no longer holds the signal.
func (n *Network) Extend(id, owner string, until time.Time) bool {
	held := false
	_ = n.with(id, func(s *model.Signal) error {
		if s.Override != nil && s.Override.CorridorID == owner {
			if until.After(s.Override.ExpiresAt) {
				s.Override.ExpiresAt = until
			}
			held = true
		}
		return nil
	})
	return held
}

// Release drops owner's override on id. Another holder is left alone.
func (n *Network) Release(id, owner string, now time.Time) bool {
	released := false
	_ = n.with(id, func(s *model.Signal) error {
		if s.Override != nil && s.Override.CorridorID == owner {
			s.Override = nil
			s.LastUpdate = now
			released = true
		}
		return nil
	})
	return released
}

// Holder returns the live override on id, if any.
func (n *Network) Holder(id string, now time.Time) (model.Override, bool) {
	var (
		out model.Override
		ok  bool
	)
	_ = n.with(id, func(s *model.Signal) error {
		if s.Override != nil && !s.Override.Expired(now) {
			out, ok = *s.Override, true
		}
		return nil
	})
	return out, ok
}

// UpdateStatus applies field feedback. Empty values keep the current ones.
// wasOffline reports an OFFLINE to ONLINE transition.
func (n *Network) UpdateStatus(id string, state model.SignalState, status model.LinkStatus, now time.Time) (wasOffline bool, err error) {
	err = n.with(id, func(s *model.Signal) error {
		if state != "" {
			s.State = state
		}
		if status == "" {
			status = model.Online
		}
		wasOffline = s.Status == model.Offline && status == model.Online
		s.Status = status
		s.LastUpdate = now
		return nil
	})
	return wasOffline, err
}

// NetworkStatus counts signals by condition.
type NetworkStatus struct {
	Total      int `json:"total"`
	Online     int `json:"online"`
	Offline    int `json:"offline"`
	Overridden int `json:"overridden"`
	Green      int `json:"green"`
	Yellow     int `json:"yellow"`
	Red        int `json:"red"`
}

// Status summarises the network at now.
func (n *Network) Status(now time.Time) NetworkStatus {
	var st NetworkStatus
	for _, s := range n.Snapshot() {
		st.Total++
		if s.Status == model.Offline {
			st.Offline++
		} else {
			st.Online++
		}
		if s.Override != nil && !s.Override.Expired(now) {
			st.Overridden++
		}
		switch s.State {
		case model.StateGreen:
			st.Green++
		case model.StateYellow:
			st.Yellow++
		case model.StateRed:
			st.Red++
		}
	}
	return st
}

func copySignal(s model.Signal) model.Signal {
	if s.Override != nil {
		o := *s.Override
		s.Override = &o
	}
	return s
}
