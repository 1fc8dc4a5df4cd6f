package pricing

import "math"

// Fare constants in OMR. Formula: base + distance * rate, never below
// the minimum, rounded to 3 decimal places (baisa precision).
const (
	BaseFare    = 5.000
	RatePerKm   = 0.350
	MinimumFare = 5.000
)

// FareBreakdown itemizes a fare estimate for a request.
type FareBreakdown struct {
	Base       float64 `json:"base"`
	RatePerKm  float64 `json:"rate_per_km"`
	DistanceKm float64 `json:"distance_km"`
	Total      float64 `json:"total"`
}

// Estimate computes the fare for a trip of the given road distance.
func Estimate(distanceKm float64) FareBreakdown {
	total := BaseFare + distanceKm*RatePerKm
	if total < MinimumFare {
		total = MinimumFare
	}
	total = math.Round(total*1000) / 1000
	return FareBreakdown{
		Base:       BaseFare,
		RatePerKm:  RatePerKm,
		DistanceKm: distanceKm,
		Total:      total,
	}
}
