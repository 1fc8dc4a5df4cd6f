package rank

import (
	"errors"
	"testing"

	"github.com/example/roadside-dispatch/internal/models"
)

func TestRankNearestFirst(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	// roughly 12, 3 and 7 km north of the origin
	cands := []models.Candidate{
		{DriverID: "far", Loc: models.Coord{Lat: 0.108, Lon: 0}},
		{DriverID: "near", Loc: models.Coord{Lat: 0.027, Lon: 0}},
		{DriverID: "mid", Loc: models.Coord{Lat: 0.063, Lon: 0}},
	}
	r := &Ranker{}
	got := r.Rank(origin, cands)
	want := []string{"near", "mid", "far"}
	for i, w := range want {
		if got[i].DriverID != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, got[i].DriverID)
		}
	}
	if got[0].DistanceKm >= got[1].DistanceKm || got[1].DistanceKm >= got[2].DistanceKm {
		t.Fatalf("distances not ascending: %+v", got)
	}
}

func TestRankTieBreaksByDriverID(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	same := models.Coord{Lat: 0.01, Lon: 0.01}
	cands := []models.Candidate{
		{DriverID: "b", Loc: same},
		{DriverID: "a", Loc: same},
		{DriverID: "c", Loc: same},
	}
	r := &Ranker{}
	got := r.Rank(origin, cands)
	for i, w := range []string{"a", "b", "c"} {
		if got[i].DriverID != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, got[i].DriverID)
		}
	}
}

func TestRankDoesNotModifyInput(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	cands := []models.Candidate{
		{DriverID: "x", Loc: models.Coord{Lat: 0.1, Lon: 0}},
		{DriverID: "y", Loc: models.Coord{Lat: 0.01, Lon: 0}},
	}
	(&Ranker{}).Rank(origin, cands)
	if cands[0].DriverID != "x" {
		t.Fatal("input slice was reordered")
	}
}

type fixedRoutes struct {
	dist map[string]float64
	err  error
}

func (f *fixedRoutes) DistanceKm(from, to models.Coord) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	k := fmtCoord(from)
	return f.dist[k], nil
}

func TestRankUsesRouteClient(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	nearLoc := models.Coord{Lat: 0.01, Lon: 0}
	farLoc := models.Coord{Lat: 0.1, Lon: 0}
	// routing says the geographically nearer driver is farther by road
	routes := &fixedRoutes{dist: map[string]float64{
		fmtCoord(nearLoc): 9.0,
		fmtCoord(farLoc):  2.0,
	}}
	r := &Ranker{Routes: routes}
	got := r.Rank(origin, []models.Candidate{
		{DriverID: "geo-near", Loc: nearLoc},
		{DriverID: "geo-far", Loc: farLoc},
	})
	if got[0].DriverID != "geo-far" {
		t.Fatalf("expected road distance to win, got %+v", got)
	}
}

func TestRankFallsBackToHaversineOnRouteError(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	r := &Ranker{Routes: &fixedRoutes{err: errors.New("routing down")}}
	got := r.Rank(origin, []models.Candidate{
		{DriverID: "far", Loc: models.Coord{Lat: 0.1, Lon: 0}},
		{DriverID: "near", Loc: models.Coord{Lat: 0.01, Lon: 0}},
	})
	if got[0].DriverID != "near" {
		t.Fatalf("expected haversine fallback ordering, got %+v", got)
	}
}
