// Package audit keeps an append-only trail of dispatch decisions, incident
// transitions and corridor actions.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record kinds.
const (
	KindDispatch   = "dispatch"
	KindTransition = "transition"
	KindCorridor   = "corridor"
	KindRating     = "rating"
)

// Record captures one decision.
type Record struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Kind       string             `json:"kind"`
	IncidentID string             `json:"incident_id,omitempty"`
	Domain     string             `json:"domain,omitempty"`
	From       string             `json:"from,omitempty"`
	To         string             `json:"to,omitempty"`
	Outcome    string             `json:"outcome,omitempty"`
	Units      []string           `json:"units,omitempty"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	CorridorID string             `json:"corridor_id,omitempty"`
	Note       string             `json:"note,omitempty"`
}

// NewRecord stamps a record with a fresh id.
func NewRecord(kind string, at time.Time) Record {
	return Record{ID: uuid.NewString(), Kind: kind, Timestamp: at}
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start      time.Time
	End        time.Time
	Kind       string
	IncidentID string
	UnitID     string
	Limit      int
}

func (q Query) matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.IncidentID != "" && r.IncidentID != q.IncidentID {
		return false
	}
	if q.UnitID != "" {
		for _, id := range r.Units {
			if id == q.UnitID {
				return true
			}
		}
		return false
	}
	return true
}

// limit keeps the newest q.Limit records.
func (q Query) limit(res []Record) []Record {
	if q.Limit > 0 && len(res) > q.Limit {
		return res[len(res)-q.Limit:]
	}
	return res
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Discard accepts and forgets everything.
type Discard struct{}

func (Discard) Append(context.Context, Record) error           { return nil }
func (Discard) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (Discard) Close() error                                   { return nil }
