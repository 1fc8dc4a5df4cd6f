package registry

import (
	"sync"
	"time"

	"github.com/example/roadside-dispatch/internal/geo"
	"github.com/example/roadside-dispatch/internal/models"
)

// DefaultRadiusKm bounds eligibility queries when the caller passes a
// non-positive radius.
const DefaultRadiusKm = 50.0

// Registry answers eligibility queries for dispatch and absorbs driver
// location/status updates. Updates are last-write-wins per driver id.
type Registry interface {
	// FindEligible returns drivers that are online, approved, have a
	// known location and sit within radiusKm of the pickup point. The
	// result carries distances but no ordering guarantee.
	FindEligible(pickup models.Coord, radiusKm float64) []models.Candidate
	// Eligible re-checks a single driver, used immediately before each
	// offer since state may have changed after ranking.
	Eligible(driverID string) bool
	UpdateLocation(driverID string, lat, lon float64)
	SetOnline(driverID string, online bool)
	SetApproval(driverID string, state models.ApprovalState)
}

// Index is the in-memory Registry used when Redis is not configured,
// and by tests.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) UpdateLocation(driverID string, lat, lon float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.drivers[driverID]
	d.ID = driverID
	d.Loc = &models.Coord{Lat: lat, Lon: lon}
	d.LastSeenAt = time.Now()
	g.drivers[driverID] = d
}

func (g *Index) SetOnline(driverID string, online bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.drivers[driverID]
	d.ID = driverID
	d.Online = online
	d.LastSeenAt = time.Now()
	g.drivers[driverID] = d
}

func (g *Index) SetApproval(driverID string, state models.ApprovalState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.drivers[driverID]
	d.ID = driverID
	d.Approval = state
	g.drivers[driverID] = d
}

// Upsert replaces the whole driver record, used by onboarding and the
// location consumer.
func (g *Index) Upsert(d models.Driver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.LastSeenAt = time.Now()
	g.drivers[d.ID] = d
}

func (g *Index) Get(driverID string) (models.Driver, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.drivers[driverID]
	return d, ok
}

func eligible(d models.Driver) bool {
	return d.Online && d.Approval == models.ApprovalApproved && d.Loc != nil
}

func (g *Index) Eligible(driverID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.drivers[driverID]
	return ok && eligible(d)
}

// naive scan; in prod use the Redis GEO index
func (g *Index) FindEligible(pickup models.Coord, radiusKm float64) []models.Candidate {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Candidate, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !eligible(d) {
			continue
		}
		dist := geo.DistanceKm(pickup, *d.Loc)
		if dist > radiusKm {
			continue
		}
		out = append(out, models.Candidate{DriverID: d.ID, Loc: *d.Loc, DistanceKm: dist})
	}
	return out
}
