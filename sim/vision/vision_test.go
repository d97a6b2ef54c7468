package vision

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/patient"
)

func TestBaseDelta_Ranges(t *testing.T) {
	tests := []struct {
		state    disease.State
		treated  bool
		min, max int
	}{
		{disease.Stable, false, 0, 2},
		{disease.Stable, true, 0, 2},
		{disease.Active, true, -1, 1},
		{disease.Active, false, -3, -1},
		{disease.HighlyActive, true, -2, 0},
		{disease.HighlyActive, false, -5, -2},
		{disease.Naive, false, 0, 0},
	}
	rng := rand.New(rand.NewSource(42))
	for _, tt := range tests {
		seen := map[int]bool{}
		for i := 0; i < 2000; i++ {
			d := BaseDelta(rng, tt.state, tt.treated)
			if d < tt.min || d > tt.max {
				t.Fatalf("%s treated=%v: delta %d outside [%d, %d]", tt.state, tt.treated, d, tt.min, tt.max)
			}
			seen[d] = true
		}
		assert.Len(t, seen, tt.max-tt.min+1, "%s treated=%v should cover its range", tt.state, tt.treated)
	}
}

func TestModel_ScalesToElapsedDays(t *testing.T) {
	m := NewModel(28)
	a := rand.New(rand.NewSource(5))
	b := rand.New(rand.NewSource(5))
	for i := 0; i < 100; i++ {
		full := float64(BaseDelta(a, disease.HighlyActive, false))
		half := m.Delta(b, nil, disease.Active, disease.HighlyActive, false, 14)
		assert.Equal(t, full/2, half)
	}
	assert.Equal(t, DefaultReferenceDays, NewModel(0).ReferenceDays)
}

func TestMeasurement_ClampsAndRounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	noisy := Measurement{NoiseSD: 25}
	for i := 0; i < 2000; i++ {
		for _, underlying := range []float64{0, 2, 98, 100} {
			v := noisy.Measure(rng, underlying)
			if v < patient.MinVision || v > patient.MaxVision {
				t.Fatalf("measurement %v out of range", v)
			}
			assert.Equal(t, float64(int(v)), v)
		}
	}
	assert.Equal(t, 63.0, Measurement{}.Measure(rng, 62.6))
}
