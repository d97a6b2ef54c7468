// Package vision computes how visual acuity responds to disease activity
// and how a visit measures it.
package vision

import (
	"math"
	"math/rand"

	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/patient"
)

// DefaultReferenceDays is the interval the letter-change ranges are
// calibrated against.
const DefaultReferenceDays = 28

// Updater computes the change in underlying vision over one progression
// step of elapsedDays during which the disease moved from -> to.
type Updater interface {
	Delta(rng *rand.Rand, p *patient.Patient, from, to disease.State, treated bool, elapsedDays int) float64
}

// Model is the population-average vision response.
//
//	STABLE          gain 0..2
//	ACTIVE          -1..+1 treated, -3..-1 untreated
//	HIGHLY_ACTIVE   -2..0 treated, -5..-2 untreated
//	NAIVE           0
//
// Ranges are letters per ReferenceDays and are scaled linearly to the
// elapsed step.
type Model struct {
	ReferenceDays int
}

// NewModel returns a model calibrated per referenceDays; non-positive
// values select DefaultReferenceDays.
func NewModel(referenceDays int) *Model {
	if referenceDays <= 0 {
		referenceDays = DefaultReferenceDays
	}
	return &Model{ReferenceDays: referenceDays}
}

// BaseDelta samples the integer letter change for one reference interval.
func BaseDelta(rng *rand.Rand, to disease.State, treated bool) int {
	switch to {
	case disease.Stable:
		return rng.Intn(3)
	case disease.Active:
		if treated {
			return rng.Intn(3) - 1
		}
		return rng.Intn(3) - 3
	case disease.HighlyActive:
		if treated {
			return rng.Intn(3) - 2
		}
		return rng.Intn(4) - 5
	default:
		return 0
	}
}

func (m *Model) Delta(rng *rand.Rand, _ *patient.Patient, _, to disease.State, treated bool, elapsedDays int) float64 {
	return float64(BaseDelta(rng, to, treated)) * m.scale(elapsedDays)
}

func (m *Model) scale(elapsedDays int) float64 {
	if elapsedDays <= 0 || m.ReferenceDays <= 0 {
		return 1
	}
	return float64(elapsedDays) / float64(m.ReferenceDays)
}

// Measurement adds Gaussian noise to the underlying vision and rounds to
// whole letters.
type Measurement struct {
	NoiseSD float64
}

// Measure returns the recorded letter score for an underlying vision value.
// A zero NoiseSD consumes no randomness.
func (m Measurement) Measure(rng *rand.Rand, underlying float64) float64 {
	v := underlying
	if m.NoiseSD > 0 {
		v += rng.NormFloat64() * m.NoiseSD
	}
	return patient.ClampVision(math.Round(v))
}
