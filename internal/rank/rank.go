package rank

import (
	"log/slog"
	"sort"

	"github.com/example/roadside-dispatch/internal/geo"
	"github.com/example/roadside-dispatch/internal/models"
)

// RouteClient estimates road distance between two points, e.g. via an
// OSRM server. Implementations may fail or time out; the ranker falls
// back to the great-circle distance when they do.
type RouteClient interface {
	DistanceKm(from, to models.Coord) (float64, error)
}

// Ranker orders candidates nearest-first from a pickup point. Ties in
// distance break by driver id ascending so ordering is reproducible.
type Ranker struct {
	Routes RouteClient  // optional road-distance override
	Cache  *Cache       // optional, only consulted when Routes is set
	Logger *slog.Logger // fallback events are logged here
}

// Rank returns a new slice sorted ascending by distance to origin. The
// input is not modified.
func (r *Ranker) Rank(origin models.Coord, candidates []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].DistanceKm = r.distance(origin, out[i].Loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].DriverID < out[j].DriverID
	})
	return out
}

func (r *Ranker) distance(origin, loc models.Coord) float64 {
	if r.Routes == nil {
		return geo.DistanceKm(loc, origin)
	}
	if r.Cache != nil {
		if v, ok := r.Cache.Get(loc, origin); ok {
			return v
		}
	}
	v, err := r.Routes.DistanceKm(loc, origin)
	if err != nil {
		// operators need to tell routed estimates from straight-line ones
		if r.Logger != nil {
			r.Logger.Warn("routing lookup failed, falling back to haversine", "error", err)
		}
		return geo.DistanceKm(loc, origin)
	}
	if r.Cache != nil {
		r.Cache.Set(loc, origin, v)
	}
	return v
}
