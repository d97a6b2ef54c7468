// Package rates converts event probabilities between time bases.
//
// Configuration probabilities arrive calibrated to one time base (per visit,
// per year) and are consumed on another (per progression tick, per actual
// visit interval). All conversions assume a constant hazard inside the source
// period, so compounding is exact: the probability of at least one event over
// k periods is 1 - (1-p)^k.
package rates

import "math"

// DaysPerYear is the year length used by every annual conversion.
const DaysPerYear = 365.0

// Compound returns the probability of at least one event over `periods`
// repetitions of a per-period probability p. Fractional periods are allowed.
func Compound(p, periods float64) float64 {
	p = Clamp01(p)
	if periods <= 0 || p == 0 {
		return 0
	}
	if p == 1 {
		return 1
	}
	return 1 - math.Pow(1-p, periods)
}

// Rescale converts a probability calibrated over fromDays into the
// equivalent probability over toDays.
func Rescale(p, fromDays, toDays float64) float64 {
	if fromDays <= 0 {
		return Clamp01(p)
	}
	return Compound(p, toDays/fromDays)
}

// PerVisitToPerTick converts a probability calibrated per visit interval of
// visitDays into the per-tick probability for a tick of tickDays.
func PerVisitToPerTick(pVisit float64, visitDays, tickDays int) float64 {
	return Rescale(pVisit, float64(visitDays), float64(tickDays))
}

// PerTickToPerVisit is the inverse of PerVisitToPerTick:
// p_visit = 1 - (1 - p_tick)^(ticks per visit interval).
func PerTickToPerVisit(pTick float64, tickDays, visitDays int) float64 {
	return Rescale(pTick, float64(tickDays), float64(visitDays))
}

// VisitsPerYear returns how many visits fit in a year at the given interval.
// Non-positive intervals return 0.
func VisitsPerYear(intervalDays float64) float64 {
	if intervalDays <= 0 {
		return 0
	}
	return DaysPerYear / intervalDays
}

// AnnualToPerVisit converts an annual probability into a per-visit
// probability such that compounding over visitsPerYear visits reproduces it:
// per_visit = 1 - (1 - annual)^(1/visitsPerYear).
func AnnualToPerVisit(annual, visitsPerYear float64) float64 {
	if visitsPerYear <= 0 {
		return Clamp01(annual)
	}
	return Compound(annual, 1/visitsPerYear)
}

// AnnualToPerInterval converts an annual probability into the probability
// over a single interval of intervalDays.
func AnnualToPerInterval(annual, intervalDays float64) float64 {
	return AnnualToPerVisit(annual, VisitsPerYear(intervalDays))
}

// ConditionalHazard returns P(event in (from, to] | no event by from) for a
// cumulative incidence curve evaluated at both ends.
func ConditionalHazard(cumFrom, cumTo float64) float64 {
	cumFrom, cumTo = Clamp01(cumFrom), Clamp01(cumTo)
	if cumFrom >= 1 {
		return 1
	}
	if cumTo <= cumFrom {
		return 0
	}
	return (cumTo - cumFrom) / (1 - cumFrom)
}

// Clamp01 bounds p to [0, 1]. NaN maps to 0.
func Clamp01(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
