package pricing

import "testing"

func TestEstimateLinear(t *testing.T) {
	fb := Estimate(10)
	if fb.Total != 8.500 {
		t.Fatalf("expected 8.500, got %.3f", fb.Total)
	}
}

func TestEstimateFloor(t *testing.T) {
	// negative distance cannot occur in practice but must still floor
	for _, km := range []float64{0, 0.001, -1} {
		if fb := Estimate(km); fb.Total < MinimumFare {
			t.Fatalf("distance %f: total %.3f below minimum", km, fb.Total)
		}
	}
}

func TestEstimateRounding(t *testing.T) {
	fb := Estimate(1.234) // 5 + 0.4319 = 5.4319 -> 5.432
	if fb.Total != 5.432 {
		t.Fatalf("expected 5.432, got %.3f", fb.Total)
	}
}
