// Package registry is the in-memory candidate repository. It owns the claim
// state of every candidate and serialises claims per candidate.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
)

var (
	// ErrClaimConflict means another incident won the candidate.
	ErrClaimConflict = errors.New("candidate already claimed")
	// ErrCandidateNotFound is returned for unknown ids.
	ErrCandidateNotFound = errors.New("candidate not found")
)

// Guard is an optional cross-process lock consulted before a local claim.
type Guard interface {
	Acquire(ctx context.Context, candidateID, incidentID string) (bool, error)
	Release(ctx context.Context, candidateID, incidentID string) error
}

// Filter narrows QueryActive. Empty fields match everything.
type Filter struct {
	Kind         model.Kind
	Availability model.Availability
}

type entry struct {
	mu sync.Mutex
	c  model.Candidate
}

// Store keeps candidates keyed by id.
type Store struct {
	mu    sync.RWMutex
	data  map[string]*entry
	guard Guard
}

// Option configures a Store.
type Option func(*Store)

// WithGuard installs a cross-process claim guard.
func WithGuard(g Guard) Option {
	return func(s *Store) { s.guard = g }
}

func NewStore(opts ...Option) *Store {
	s := &Store{data: map[string]*entry{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upsert inserts or replaces a candidate.
func (s *Store) Upsert(c model.Candidate) {
	s.mu.Lock()
	e, ok := s.data[c.ID()]
	if !ok {
		s.data[c.ID()] = &entry{c: c}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	e.mu.Lock()
	e.c = c
	e.mu.Unlock()
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCandidateNotFound, id)
	}
	return e, nil
}

// Get returns a snapshot of one candidate.
func (s *Store) Get(id string) (model.Candidate, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c, nil
}

// QueryActive returns active candidates matching f, ordered by id.
func (s *Store) QueryActive(f Filter) []model.Candidate {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.data))
	for _, e := range s.data {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	res := make([]model.Candidate, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		c := e.c
		e.mu.Unlock()
		if !c.Active() {
			continue
		}
		if f.Kind != "" && c.Kind() != f.Kind {
			continue
		}
		if f.Availability != "" && c.Availability() != f.Availability {
			continue
		}
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res
}

// update runs fn under the candidate lock and stores its result.
func (s *Store) update(id string, fn func(c model.Candidate, b model.Base) (model.Base, error)) (model.Candidate, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := model.BaseOf(e.c)
	if err != nil {
		return nil, err
	}
	nb, err := fn(e.c, b)
	if err != nil {
		return nil, err
	}
	c, err := model.WithBase(e.c, nb)
	if err != nil {
		return nil, err
	}
	e.c = c
	return c, nil
}

// Claim atomically moves an available candidate to assigned for incidentID.
// Losing the race returns ErrClaimConflict and leaves the candidate untouched.
func (s *Store) Claim(ctx context.Context, id, incidentID string) (model.Candidate, error) {
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, id, incidentID)
		if err != nil {
			return nil, fmt.Errorf("claim guard %s: %w", id, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrClaimConflict, id)
		}
	}
	c, err := s.update(id, func(c model.Candidate, b model.Base) (model.Base, error) {
		if !model.Eligible(c) || b.IncidentRef != "" {
			return b, fmt.Errorf("%w: %s", ErrClaimConflict, id)
		}
		b.Status = model.Assigned
		b.IncidentRef = incidentID
		return b, nil
	})
	if err != nil && s.guard != nil {
		_ = s.guard.Release(ctx, id, incidentID)
	}
	return c, err
}

// Release returns a candidate held by incidentID to available. A candidate
// held by another incident is left alone. completed counts the operation.
func (s *Store) Release(ctx context.Context, id, incidentID string, completed bool) error {
	_, err := s.update(id, func(_ model.Candidate, b model.Base) (model.Base, error) {
		if b.IncidentRef != incidentID {
			return b, fmt.Errorf("%w: %s held by %q", ErrClaimConflict, id, b.IncidentRef)
		}
		b.Status = model.Available
		b.IncidentRef = ""
		if completed {
			b.TotalOperations++
		}
		return b, nil
	})
	if err != nil {
		return err
	}
	if s.guard != nil {
		return s.guard.Release(ctx, id, incidentID)
	}
	return nil
}

// Rate folds rating into the candidate's rolling average.
func (s *Store) Rate(id string, rating float64) error {
	_, err := s.update(id, func(_ model.Candidate, b model.Base) (model.Base, error) {
		// the completed operation was already counted on release
		if b.TotalOperations > 0 {
			b.TotalOperations--
		}
		return b.RollRating(rating), nil
	})
	return err
}

// UpdateLocation moves a candidate.
func (s *Store) UpdateLocation(id string, p geo.Point) error {
	_, err := s.update(id, func(_ model.Candidate, b model.Base) (model.Base, error) {
		b.Position = p
		return b, nil
	})
	return err
}

// AdjustStationLoad changes a fire station's active incident count by delta,
// never going below zero.
func (s *Store) AdjustStationLoad(id string, delta int) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.c.(model.FireStation)
	if !ok {
		return fmt.Errorf("registry: %s is %s, not a fire station", id, e.c.Kind())
	}
	st.ActiveIncidents += delta
	if st.ActiveIncidents < 0 {
		st.ActiveIncidents = 0
	}
	e.c = st
	return nil
}

// Stations returns fire stations keyed by id, as the truck scorer expects.
func (s *Store) Stations() map[string]model.FireStation {
	out := map[string]model.FireStation{}
	for _, c := range s.QueryActive(Filter{Kind: model.KindFireStation}) {
		if st, ok := c.(model.FireStation); ok {
			out[st.CandidateID] = st
		}
	}
	return out
}

// Len is the number of known candidates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
