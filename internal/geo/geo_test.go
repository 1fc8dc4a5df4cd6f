package geo

import (
	"math"
	"testing"

	"github.com/example/roadside-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	if d := HaversineKm(0, 0, 0, 0); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineOneDegreeLatitude(t *testing.T) {
	// one degree of latitude is roughly 111 km everywhere
	d := HaversineKm(0, 0, 1, 0)
	if math.Abs(d-111.19) > 0.5 {
		t.Fatalf("expected ~111.19 km, got %f", d)
	}
}

func TestDistanceKmMuscatPickup(t *testing.T) {
	pickup := models.Coord{Lat: 23.6100, Lon: 58.4059}
	nearby := models.Coord{Lat: 23.6105, Lon: 58.4060}
	farther := models.Coord{Lat: 23.5880, Lon: 58.3829}

	dn := DistanceKm(pickup, nearby)
	df := DistanceKm(pickup, farther)
	if dn > 0.1 {
		t.Fatalf("expected nearby driver within 0.1 km, got %f", dn)
	}
	if df < 2.0 || df > 4.0 {
		t.Fatalf("expected farther driver a few km away, got %f", df)
	}
	if dn >= df {
		t.Fatalf("expected nearby < farther, got %f >= %f", dn, df)
	}
}
