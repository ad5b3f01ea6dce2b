package domain

import "math"

// Scoring weights. Hazard classification and proximity dominate; size and
// speed refine.
const (
	weightHazard   = 0.30
	weightDistance = 0.30
	weightDiameter = 0.25
	weightVelocity = 0.15
)

// Distance sub-score bounds in kilometers. Anything inside roughly one lunar
// distance saturates at 1.0; beyond ten million kilometers the approach
// contributes nothing.
const (
	distanceNearKm = 400_000
	distanceFarKm  = 10_000_000
)

const (
	diameterCapM    = 1000
	velocityCapKmph = 100_000
)

// RiskScore computes the collision risk score in [0,1] for one close
// approach, rounded to 4 decimal places. It is pure and never fails:
// non-finite inputs degrade the affected sub-score to zero.
func RiskScore(missDistanceKm, velocityKmph, diameterMMax float64, hazardous bool) float64 {
	var sHazard float64
	if hazardous {
		sHazard = 1.0
	}

	total := sHazard*weightHazard +
		distanceSubScore(missDistanceKm)*weightDistance +
		cappedRatio(diameterMMax, diameterCapM)*weightDiameter +
		cappedRatio(velocityKmph, velocityCapKmph)*weightVelocity

	return math.Round(math.Min(1.0, math.Max(0.0, total))*10000) / 10000
}

// distanceSubScore interpolates linearly in log10 space between the near and
// far bounds, so each order of magnitude of distance costs the same amount of
// score. Closer approaches score higher.
func distanceSubScore(missDistanceKm float64) float64 {
	switch {
	case math.IsNaN(missDistanceKm) || missDistanceKm <= 0:
		return 0
	case missDistanceKm <= distanceNearKm:
		return 1.0
	case missDistanceKm >= distanceFarKm:
		return 0.0
	}

	minLog := math.Log10(distanceNearKm)
	maxLog := math.Log10(distanceFarKm)
	curLog := math.Log10(missDistanceKm)
	return 1.0 - (curLog-minLog)/(maxLog-minLog)
}

func cappedRatio(value, limit float64) float64 {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	if value >= limit {
		return 1.0
	}
	return value / limit
}
