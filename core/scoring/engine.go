// Package scoring ranks candidates for an incident. Everything here is a pure
// function of its inputs; callers pass a snapshot and get an ordered slice back.
package scoring

import (
	"math"
	"sort"

	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
)

// Weights is the distance penalty of one domain.
type Weights struct {
	PerKm float64 `json:"per_km"`
	Cap   float64 `json:"cap"`
}

func (w Weights) penalty(km float64) float64 { return math.Min(w.Cap, km*w.PerKm) }

// Config tunes the scorers.
type Config struct {
	Ambulance       Weights `json:"ambulance"`
	Hospital        Weights `json:"hospital"`
	FireTruck       Weights `json:"fire_truck"`
	Station         Weights `json:"station"`
	GovernmentBonus float64 `json:"government_bonus"`
	StationRadiusKm float64 `json:"station_radius_km"`
}

// DefaultConfig returns the production weights.
func DefaultConfig() Config {
	return Config{
		Ambulance:       Weights{PerKm: 3, Cap: 40},
		Hospital:        Weights{PerKm: 2, Cap: 30},
		FireTruck:       Weights{PerKm: 3, Cap: 40},
		Station:         Weights{PerKm: 2, Cap: 30},
		GovernmentBonus: 5,
		StationRadiusKm: 20,
	}
}

// SetDefaults fills zero values from DefaultConfig.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	fill := func(w *Weights, def Weights) {
		if w.PerKm <= 0 {
			w.PerKm = def.PerKm
		}
		if w.Cap <= 0 {
			w.Cap = def.Cap
		}
	}
	fill(&c.Ambulance, d.Ambulance)
	fill(&c.Hospital, d.Hospital)
	fill(&c.FireTruck, d.FireTruck)
	fill(&c.Station, d.Station)
	if c.GovernmentBonus == 0 {
		c.GovernmentBonus = d.GovernmentBonus
	}
	if c.StationRadiusKm <= 0 {
		c.StationRadiusKm = d.StationRadiusKm
	}
}

// Context describes the incident being matched.
type Context struct {
	Domain        model.Domain
	Severity      model.Severity
	EmergencyType string
	Origin        geo.Point
	Destination   *geo.Point
	// RequiredTypes lists truck types the fire plan must cover.
	RequiredTypes []model.TruckType
	// Stations gives truck scoring access to the load of each station.
	Stations map[string]model.FireStation
}

// Scorer scores one candidate variant.
type Scorer interface {
	Eligible(ctx Context, c model.Candidate, km float64) bool
	Score(ctx Context, c model.Candidate, km float64) float64
}

// Ranked is one scored candidate.
type Ranked struct {
	Candidate  model.Candidate `json:"-"`
	ID         string          `json:"id"`
	Score      float64         `json:"score"`
	DistanceKm float64         `json:"distance_km"`
}

// Engine dispatches to the scorer registered for each candidate kind.
type Engine struct {
	cfg     Config
	scorers map[model.Kind]Scorer
}

// NewEngine builds an engine with the four built-in scorers.
func NewEngine(cfg Config) *Engine {
	cfg.SetDefaults()
	return &Engine{
		cfg: cfg,
		scorers: map[model.Kind]Scorer{
			model.KindAmbulance:   ambulanceScorer{w: cfg.Ambulance},
			model.KindHospital:    hospitalScorer{w: cfg.Hospital, govBonus: cfg.GovernmentBonus},
			model.KindFireTruck:   truckScorer{w: cfg.FireTruck},
			model.KindFireStation: stationScorer{w: cfg.Station, radiusKm: cfg.StationRadiusKm},
		},
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Rank scores every eligible candidate and orders the result by score
// descending, then distance ascending, then id ascending. Ineligible or
// unknown candidates are skipped; an empty slice is a valid answer.
func (e *Engine) Rank(ctx Context, cands []model.Candidate) []Ranked {
	out := make([]Ranked, 0, len(cands))
	for _, c := range cands {
		if c == nil || !model.Eligible(c) {
			continue
		}
		s, ok := e.scorers[c.Kind()]
		if !ok {
			continue
		}
		km := geo.DistanceKm(c.Location(), ctx.Origin)
		if !s.Eligible(ctx, c, km) {
			continue
		}
		out = append(out, Ranked{
			Candidate:  c,
			ID:         c.ID(),
			Score:      clamp(s.Score(ctx, c, km)),
			DistanceKm: km,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// ScoreOne scores c without applying eligibility filters.
func (e *Engine) ScoreOne(ctx Context, c model.Candidate) (Ranked, bool) {
	s, ok := e.scorers[c.Kind()]
	if !ok {
		return Ranked{}, false
	}
	km := geo.DistanceKm(c.Location(), ctx.Origin)
	return Ranked{Candidate: c, ID: c.ID(), Score: clamp(s.Score(ctx, c, km)), DistanceKm: km}, true
}

func less(a, b Ranked) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DistanceKm != b.DistanceKm {
		return a.DistanceKm < b.DistanceKm
	}
	return a.ID < b.ID
}

func clamp(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}

// Best returns the top ranked candidate.
func Best(r []Ranked) (Ranked, bool) {
	if len(r) == 0 {
		return Ranked{}, false
	}
	return r[0], true
}

// SelectTop returns up to n mutually distinct candidates in rank order.
func SelectTop(r []Ranked, n int) []Ranked {
	if n <= 0 {
		return nil
	}
	seen := make(map[string]struct{}, n)
	out := make([]Ranked, 0, n)
	for _, x := range r {
		if _, dup := seen[x.ID]; dup {
			continue
		}
		seen[x.ID] = struct{}{}
		out = append(out, x)
		if len(out) == n {
			break
		}
	}
	return out
}
