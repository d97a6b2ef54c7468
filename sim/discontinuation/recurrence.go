package discontinuation

import (
	"fmt"
	"sort"

	"github.com/amd-sim/amd-sim/sim/rates"
)

// RecurrenceCurve is a piecewise-linear cumulative recurrence probability
// over years since discontinuation. It starts at (0, 0) and stays flat
// after the last point.
type RecurrenceCurve struct {
	years []float64
	cum   []float64
}

// NewRecurrenceCurve validates points (year -> cumulative probability):
// years positive, probabilities in [0, 1] and non-decreasing.
func NewRecurrenceCurve(points map[float64]float64) (*RecurrenceCurve, error) {
	years := make([]float64, 0, len(points))
	for y := range points {
		if y <= 0 {
			return nil, fmt.Errorf("year keys must be positive, got %v", y)
		}
		years = append(years, y)
	}
	sort.Float64s(years)

	c := &RecurrenceCurve{years: []float64{0}, cum: []float64{0}}
	prev := 0.0
	for _, y := range years {
		v := points[y]
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("cumulative probability at year %v must be in [0, 1], got %v", y, v)
		}
		if v < prev {
			return nil, fmt.Errorf("cumulative probability must be non-decreasing; year %v drops to %v", y, v)
		}
		c.years = append(c.years, y)
		c.cum = append(c.cum, v)
		prev = v
	}
	return c, nil
}

// CumulativeAt interpolates the cumulative probability at the given years.
func (c *RecurrenceCurve) CumulativeAt(years float64) float64 {
	if years <= 0 {
		return 0
	}
	last := len(c.years) - 1
	if years >= c.years[last] {
		return c.cum[last]
	}
	i := sort.SearchFloat64s(c.years, years)
	x0, x1 := c.years[i-1], c.years[i]
	y0, y1 := c.cum[i-1], c.cum[i]
	return y0 + (y1-y0)*(years-x0)/(x1-x0)
}

// Probability returns P(recurrence in (fromYears, toYears] | none by fromYears).
func (c *RecurrenceCurve) Probability(fromYears, toYears float64) float64 {
	return rates.ConditionalHazard(c.CumulativeAt(fromYears), c.CumulativeAt(toYears))
}
