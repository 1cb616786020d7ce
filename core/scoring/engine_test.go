package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/core/model"
)

var origin = geo.Point{Lat: 12.0, Lng: 77.0}

// north returns a point km kilometres due north of origin.
func north(km float64) geo.Point {
	return geo.Point{Lat: origin.Lat + km/111.195, Lng: origin.Lng}
}

func ambulance(id string, class model.AmbulanceClass, km, rating float64) model.Ambulance {
	return model.Ambulance{
		Base: model.Base{
			CandidateID:   id,
			Position:      north(km),
			IsActive:      true,
			AverageRating: rating,
		},
		Class:     class,
		FuelLevel: 80,
	}
}

func TestCriticalPrefersALSOverCloserBasic(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ctx := Context{Domain: model.DomainMedical, Severity: model.SeverityCritical, EmergencyType: model.EmergencyAccident, Origin: origin}
	a := ambulance("A", model.ClassALS, 2, 4.5)
	b := ambulance("B", model.ClassBasic, 1, 5.0)

	sa, ok := e.ScoreOne(ctx, a)
	require.True(t, ok)
	sb, ok := e.ScoreOne(ctx, b)
	require.True(t, ok)
	assert.Greater(t, sa.Score, sb.Score)
	assert.InDelta(t, 77, sb.Score, 0.1)

	ranked := e.Rank(ctx, []model.Candidate{b, a})
	require.Len(t, ranked, 2)
	assert.Equal(t, []string{"A", "B"}, []string{ranked[0].ID, ranked[1].ID})
	assert.False(t, CanHandle(b, ctx.Severity, ctx.EmergencyType))

	// the basic unit still answers when it is the only one free
	ranked = e.Rank(ctx, []model.Candidate{b})
	require.Len(t, ranked, 1)
	assert.Equal(t, "B", ranked[0].ID)
}

func TestRankSkipsUnavailable(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ctx := Context{Severity: model.SeverityLow, EmergencyType: model.EmergencyOther, Origin: origin}
	busy := ambulance("busy", model.ClassBLS, 1, 5)
	busy.Status = model.Assigned
	off := ambulance("off", model.ClassBLS, 1, 5)
	off.IsActive = false
	dry := ambulance("dry", model.ClassBLS, 1, 5)
	dry.FuelLevel = 10

	assert.Empty(t, e.Rank(ctx, []model.Candidate{busy, off}))
	assert.Empty(t, e.Rank(ctx, nil))
	// low fuel is a fitness concern, not an availability one
	r := e.Rank(ctx, []model.Candidate{busy, off, dry})
	require.Len(t, r, 1)
	assert.Equal(t, "dry", r[0].ID)
}

func TestRankTieBreaks(t *testing.T) {
	e := NewEngine(DefaultConfig())
	ctx := Context{Severity: model.SeverityLow, EmergencyType: model.EmergencyOther, Origin: origin}
	// all clamp to 100, so distance then id decide
	far := ambulance("a-far", model.ClassBasic, 3, 5)
	near2 := ambulance("b-near", model.ClassBasic, 1, 5)
	near1 := ambulance("a-near", model.ClassBasic, 1, 5)

	r := e.Rank(ctx, []model.Candidate{far, near2, near1})
	require.Len(t, r, 3)
	assert.Equal(t, []string{"a-near", "b-near", "a-far"}, []string{r[0].ID, r[1].ID, r[2].ID})
}

func TestRankOrderingProperty(t *testing.T) {
	e := NewEngine(DefaultConfig())
	rng := rand.New(rand.NewSource(42))
	classes := []model.AmbulanceClass{model.ClassALS, model.ClassBLS, model.ClassBasic, model.ClassNeonatal, model.ClassAir}
	sevs := []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow}
	for round := 0; round < 50; round++ {
		var cands []model.Candidate
		for i := 0; i < 20; i++ {
			a := ambulance(string(rune('a'+i)), classes[rng.Intn(len(classes))], rng.Float64()*30, rng.Float64()*5)
			cands = append(cands, a)
		}
		ctx := Context{Severity: sevs[rng.Intn(len(sevs))], EmergencyType: model.EmergencyAccident, Origin: origin}
		r := e.Rank(ctx, cands)
		for i := 1; i < len(r); i++ {
			prev, cur := r[i-1], r[i]
			if prev.Score < cur.Score {
				t.Fatalf("round %d: score increased at %d", round, i)
			}
			if prev.Score == cur.Score && prev.DistanceKm > cur.DistanceKm {
				t.Fatalf("round %d: distance decreased on tie at %d", round, i)
			}
			if cur.Score < 0 || cur.Score > 100 {
				t.Fatalf("score out of range: %v", cur.Score)
			}
		}
	}
}

func TestSelectTopDistinct(t *testing.T) {
	r := []Ranked{{ID: "a"}, {ID: "a"}, {ID: "b"}, {ID: "c"}}
	got := SelectTop(r, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Len(t, SelectTop(r, 10), 3)
	assert.Nil(t, SelectTop(r, 0))
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.Hospital.PerKm = 1.5
	c.SetDefaults()
	assert.Equal(t, 1.5, c.Hospital.PerKm)
	assert.Equal(t, 30.0, c.Hospital.Cap)
	assert.Equal(t, 3.0, c.Ambulance.PerKm)
	assert.Equal(t, 20.0, c.StationRadiusKm)
}
