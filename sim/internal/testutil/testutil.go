// Package testutil provides shared assertion helpers for the simulator's
// engine and component test packages.
package testutil

import (
	"math"
	"testing"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertInRange fails when got lies outside [lo, hi] or is NaN.
func AssertInRange(t *testing.T, name string, got, lo, hi float64) {
	t.Helper()
	if math.IsNaN(got) || got < lo || got > hi {
		t.Errorf("%s: got %v, want within [%v, %v]", name, got, lo, hi)
	}
}

// AssertFractions checks that every fraction lies in [0, 1] and that they
// sum to one, or to zero for an empty population.
func AssertFractions[K comparable](t *testing.T, name string, fractions map[K]float64, empty bool) {
	t.Helper()
	sum := 0.0
	for k, f := range fractions {
		AssertInRange(t, name, f, 0, 1)
		if math.IsNaN(f) {
			t.Errorf("%s[%v] is NaN", name, k)
		}
		sum += f
	}
	want := 1.0
	if empty {
		want = 0
	}
	if math.Abs(sum-want) > 1e-9 {
		t.Errorf("%s: fractions sum to %v, want %v", name, sum, want)
	}
}
