package sim

import (
	"math/rand"
)

// generateArrivals returns enrollment days in non-decreasing order; the
// index of each entry is the patient's ordinal.
//
// Fixed-count mode spreads exactly n arrivals over the recruitment window
// as a Poisson process conditioned on its count: n+1 exponential spacings
// normalized by their sum give uniform order statistics. Rate mode draws
// exponential gaps at rate/7 per day until the horizon.
func generateArrivals(pop PopulationConfig, horizon int, rng *rand.Rand) []int {
	if pop.NPatients != nil {
		window := horizon
		if pop.RecruitmentDays > 0 && pop.RecruitmentDays < horizon {
			window = pop.RecruitmentDays
		}
		return fixedCountArrivals(*pop.NPatients, window, rng)
	}
	return poissonArrivals(*pop.PatientArrivalRate/7, horizon, rng)
}

func fixedCountArrivals(n, window int, rng *rand.Rand) []int {
	if n <= 0 || window <= 0 {
		return []int{}
	}
	cum := make([]float64, n+1)
	total := 0.0
	for i := range cum {
		total += rng.ExpFloat64()
		cum[i] = total
	}
	days := make([]int, n)
	for i := 0; i < n; i++ {
		d := int(cum[i] / total * float64(window))
		if d >= window {
			d = window - 1
		}
		days[i] = d
	}
	return days
}

func poissonArrivals(perDay float64, horizon int, rng *rand.Rand) []int {
	days := []int{}
	if perDay <= 0 {
		return days
	}
	t := 0.0
	for {
		t += rng.ExpFloat64() / perDay
		if t >= float64(horizon) {
			return days
		}
		days = append(days, int(t))
	}
}
