// Package baseline samples starting visual acuity (ETDRS letters) for newly
// enrolled patients.
package baseline

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution samples an integer ETDRS letter score.
type Distribution interface {
	// Sample returns a score inside the distribution's [min, max] range.
	Sample(rng *rand.Rand) int
	// Mean returns the expected score of the (post-clipping) distribution.
	Mean() float64
}

// Spec parameterizes a distribution by type name.
type Spec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// Valid distribution type names.
const (
	TypeNormal        = "normal"
	TypeBetaThreshold = "beta_threshold"
	TypeUniform       = "uniform"
)

// DefaultSpec is the normal distribution used when no baseline
// configuration is supplied.
func DefaultSpec() Spec {
	return Spec{Type: TypeNormal, Params: map[string]float64{"mean": 65, "std": 10, "min": 5, "max": 95}}
}

// UKFundingSpec is the beta distribution with the funding-threshold
// censoring effect above 70 letters.
func UKFundingSpec() Spec {
	return Spec{Type: TypeBetaThreshold, Params: map[string]float64{
		"alpha": 3.5, "beta": 2.0, "min": 5, "max": 98,
		"threshold": 70, "threshold_reduction": 0.6,
	}}
}

// New builds the distribution described by spec.
func New(spec Spec) (Distribution, error) {
	switch spec.Type {
	case TypeNormal:
		if err := requireParam(spec.Params, "mean", "std", "min", "max"); err != nil {
			return nil, err
		}
		return NewNormal(spec.Params["mean"], spec.Params["std"], int(spec.Params["min"]), int(spec.Params["max"]))
	case TypeBetaThreshold:
		if err := requireParam(spec.Params, "alpha", "beta", "min", "max", "threshold", "threshold_reduction"); err != nil {
			return nil, err
		}
		return NewBetaWithThreshold(spec.Params["alpha"], spec.Params["beta"],
			spec.Params["min"], spec.Params["max"],
			spec.Params["threshold"], spec.Params["threshold_reduction"])
	case TypeUniform:
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		return NewUniform(int(spec.Params["min"]), int(spec.Params["max"]))
	default:
		return nil, fmt.Errorf("unknown baseline vision distribution %q; valid: normal, beta_threshold, uniform", spec.Type)
	}
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		v, ok := params[k]
		if !ok {
			return fmt.Errorf("baseline distribution requires parameter %q", k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("baseline distribution parameter %q must be finite, got %f", k, v)
		}
	}
	return nil
}

func checkRange(min, max float64) error {
	if min < 0 || max > 100 || min > max {
		return fmt.Errorf("baseline range [%v, %v] must satisfy 0 <= min <= max <= 100", min, max)
	}
	return nil
}

// Normal is a Gaussian clipped to [min, max].
type Normal struct {
	mean, std float64
	min, max  int
}

// NewNormal validates and returns a clipped normal distribution.
func NewNormal(mean, std float64, min, max int) (*Normal, error) {
	if std < 0 {
		return nil, fmt.Errorf("normal baseline: std must be non-negative, got %f", std)
	}
	if err := checkRange(float64(min), float64(max)); err != nil {
		return nil, err
	}
	return &Normal{mean: mean, std: std, min: min, max: max}, nil
}

func (d *Normal) Sample(rng *rand.Rand) int {
	if d.min == d.max {
		return d.min
	}
	val := rng.NormFloat64()*d.std + d.mean
	clamped := math.Min(float64(d.max), math.Max(float64(d.min), val))
	return int(math.Round(clamped))
}

// Mean accounts for the probability mass piled onto the clip bounds.
func (d *Normal) Mean() float64 {
	if d.std == 0 {
		return math.Min(float64(d.max), math.Max(float64(d.min), d.mean))
	}
	n := distuv.Normal{Mu: d.mean, Sigma: d.std}
	lo, hi := float64(d.min), float64(d.max)
	a, b := (lo-d.mean)/d.std, (hi-d.mean)/d.std
	pLo, pHi := n.CDF(lo), 1-n.CDF(hi)
	inner := n.CDF(hi) - n.CDF(lo)
	// E[X; lo<X<hi] = mu*P(lo<X<hi) + sigma*(phi(a) - phi(b))
	innerMean := d.mean*inner + d.std*(distuv.UnitNormal.Prob(a)-distuv.UnitNormal.Prob(b))
	return lo*pLo + innerMean + hi*pHi
}

// Uniform is a discrete uniform over [min, max]. Intended for tests.
type Uniform struct {
	min, max int
}

// NewUniform validates and returns a uniform distribution.
func NewUniform(min, max int) (*Uniform, error) {
	if err := checkRange(float64(min), float64(max)); err != nil {
		return nil, err
	}
	return &Uniform{min: min, max: max}, nil
}

func (d *Uniform) Sample(rng *rand.Rand) int {
	return d.min + rng.Intn(d.max-d.min+1)
}

func (d *Uniform) Mean() float64 {
	return float64(d.min+d.max) / 2
}

// betaGridCells is the resolution of the numerically integrated CDF table.
const betaGridCells = 2000

// BetaWithThreshold is Beta(alpha, beta) scaled to [min, max] with the
// density above threshold reduced by a fixed fraction. Sampling inverts a
// precomputed CDF table.
type BetaWithThreshold struct {
	min, max  float64
	threshold float64
	edges     []float64 // cell boundaries in letters, len = cells+1
	density   []float64 // normalized density per cell (per letter)
	cdf       []float64 // cumulative mass at each cell's upper edge
}

// NewBetaWithThreshold builds the CDF table. reduction is the fraction of
// density removed above threshold, in [0, 1).
func NewBetaWithThreshold(alpha, beta, min, max, threshold, reduction float64) (*BetaWithThreshold, error) {
	if alpha <= 0 || beta <= 0 {
		return nil, fmt.Errorf("beta baseline: alpha and beta must be positive, got %f, %f", alpha, beta)
	}
	if reduction < 0 || reduction >= 1 {
		return nil, fmt.Errorf("beta baseline: threshold_reduction must be in [0, 1), got %f", reduction)
	}
	if err := checkRange(min, max); err != nil {
		return nil, err
	}
	if min == max {
		return nil, fmt.Errorf("beta baseline: min and max must differ")
	}

	shape := distuv.Beta{Alpha: alpha, Beta: beta}
	width := (max - min) / betaGridCells
	edges := make([]float64, betaGridCells+1)
	for i := range edges {
		edges[i] = min + float64(i)*width
	}
	// Place the threshold exactly on a cell edge so no cell straddles the
	// discontinuity.
	if threshold > min && threshold < max {
		idx := int(math.Round((threshold - min) / width))
		if idx > 0 && idx < betaGridCells {
			edges[idx] = threshold
		}
	}

	mass := make([]float64, betaGridCells)
	for i := 0; i < betaGridCells; i++ {
		lo, hi := edges[i], edges[i+1]
		mid := (lo + hi) / 2
		f := shape.Prob((mid - min) / (max - min))
		if mid > threshold {
			f *= 1 - reduction
		}
		mass[i] = f * (hi - lo)
	}
	total := floats.Sum(mass)
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("beta baseline: density does not integrate (alpha=%f, beta=%f)", alpha, beta)
	}
	floats.Scale(1/total, mass)

	density := make([]float64, betaGridCells)
	for i := range mass {
		density[i] = mass[i] / (edges[i+1] - edges[i])
	}
	cdf := floats.CumSum(make([]float64, betaGridCells), mass)
	cdf[len(cdf)-1] = 1.0

	return &BetaWithThreshold{
		min:       min,
		max:       max,
		threshold: threshold,
		edges:     edges,
		density:   density,
		cdf:       cdf,
	}, nil
}

func (d *BetaWithThreshold) Sample(rng *rand.Rand) int {
	v := d.quantile(rng.Float64())
	v = math.Min(d.max, math.Max(d.min, v))
	return int(math.Round(v))
}

// quantile inverts the piecewise-linear CDF.
func (d *BetaWithThreshold) quantile(u float64) float64 {
	idx := sort.SearchFloat64s(d.cdf, u)
	if idx >= len(d.cdf) {
		idx = len(d.cdf) - 1
	}
	lower := 0.0
	if idx > 0 {
		lower = d.cdf[idx-1]
	}
	cell := d.cdf[idx] - lower
	frac := 0.0
	if cell > 0 {
		frac = (u - lower) / cell
	}
	return d.edges[idx] + frac*(d.edges[idx+1]-d.edges[idx])
}

// PDF returns the normalized density (per letter) at v.
func (d *BetaWithThreshold) PDF(v float64) float64 {
	if v < d.min || v > d.max {
		return 0
	}
	idx := sort.SearchFloat64s(d.edges, v) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(d.density) {
		idx = len(d.density) - 1
	}
	return d.density[idx]
}

// CDF returns P(X <= v).
func (d *BetaWithThreshold) CDF(v float64) float64 {
	if v <= d.min {
		return 0
	}
	if v >= d.max {
		return 1
	}
	idx := sort.SearchFloat64s(d.edges, v) - 1
	if idx < 0 {
		idx = 0
	}
	lower := 0.0
	if idx > 0 {
		lower = d.cdf[idx-1]
	}
	return lower + d.density[idx]*(v-d.edges[idx])
}

// TotalMass integrates the table; it is 1 up to rounding.
func (d *BetaWithThreshold) TotalMass() float64 {
	total := 0.0
	for i, f := range d.density {
		total += f * (d.edges[i+1] - d.edges[i])
	}
	return total
}

func (d *BetaWithThreshold) Mean() float64 {
	mean := 0.0
	for i, f := range d.density {
		lo, hi := d.edges[i], d.edges[i+1]
		mean += f * (hi - lo) * (lo + hi) / 2
	}
	return mean
}
