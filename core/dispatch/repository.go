package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/registry"
)

// IncidentRepository is the durable storage boundary for incidents.
// Load returns ErrIncidentNotFound for unknown ids.
type IncidentRepository interface {
	Load(ctx context.Context, id string) (*model.Incident, error)
	Persist(ctx context.Context, inc *model.Incident) error
	ListActive(ctx context.Context) ([]*model.Incident, error)
}

// IncidentLister is implemented by repositories able to list every incident.
type IncidentLister interface {
	List(ctx context.Context) ([]*model.Incident, error)
}

// Candidates is the candidate registry as seen by the orchestrator.
type Candidates interface {
	QueryActive(f registry.Filter) []model.Candidate
	Get(id string) (model.Candidate, error)
	Claim(ctx context.Context, id, incidentID string) (model.Candidate, error)
	Release(ctx context.Context, id, incidentID string, completed bool) error
	Rate(id string, rating float64) error
	UpdateLocation(id string, p geo.Point) error
	AdjustStationLoad(id string, delta int) error
	Stations() map[string]model.FireStation
}

// MemoryRepository keeps incidents in memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]*model.Incident
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: map[string]*model.Incident{}}
}

func (r *MemoryRepository) Load(_ context.Context, id string) (*model.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inc, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	return inc.Clone(), nil
}

func (r *MemoryRepository) Persist(_ context.Context, inc *model.Incident) error {
	r.mu.Lock()
	r.data[inc.ID] = inc.Clone()
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) ListActive(ctx context.Context) ([]*model.Incident, error) {
	all, _ := r.List(ctx)
	out := all[:0]
	for _, inc := range all {
		if !inc.Status.Terminal() {
			out = append(out, inc)
		}
	}
	return out, nil
}

// List returns every incident ordered by creation time.
func (r *MemoryRepository) List(_ context.Context) ([]*model.Incident, error) {
	r.mu.RLock()
	out := make([]*model.Incident, 0, len(r.data))
	for _, inc := range r.data {
		out = append(out, inc.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
