// Package disease holds the four-state lesion-activity model and the
// probabilistic transition sampler driven by it.
package disease

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/amd-sim/amd-sim/sim/rates"
)

// probabilityTolerance bounds row-sum drift accepted by validation.
const probabilityTolerance = 1e-6

// Distribution maps a target state to its probability.
type Distribution map[State]float64

// Sum adds the probabilities in AllStates order so that the result is
// independent of map iteration order.
func (d Distribution) Sum() float64 {
	total := 0.0
	for _, s := range AllStates {
		total += d[s]
	}
	return total
}

func (d Distribution) clone() Distribution {
	out := make(Distribution, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// TransitionTable maps a source state to its outgoing distribution. The
// same shape carries treated overrides and treatment multipliers, where
// rows may be partial.
type TransitionTable map[State]Distribution

// Clone returns a deep copy.
func (t TransitionTable) Clone() TransitionTable {
	out := make(TransitionTable, len(t))
	for s, row := range t {
		out[s] = row.clone()
	}
	return out
}

// Validate checks that every state has a row, that rows are non-negative and
// sum to 1, and that NAIVE never transitions to itself.
func (t TransitionTable) Validate() error {
	for _, src := range AllStates {
		row, ok := t[src]
		if !ok {
			return fmt.Errorf("transition table: missing row for %s", src)
		}
		if err := validateRow(src, row); err != nil {
			return err
		}
	}
	for src := range t {
		if !src.Valid() {
			return fmt.Errorf("transition table: unknown source state %d", int(src))
		}
	}
	return nil
}

func validateRow(src State, row Distribution) error {
	for target, p := range row {
		if !target.Valid() {
			return fmt.Errorf("transition table: %s row has unknown target state %d", src, int(target))
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("transition table: %s->%s probability must be in [0,1], got %f", src, target, p)
		}
	}
	if sum := row.Sum(); math.Abs(sum-1) > probabilityTolerance {
		return fmt.Errorf("transition table: %s row sums to %.6f, want 1.0", src, sum)
	}
	if src == Naive && row[Naive] != 0 {
		return fmt.Errorf("transition table: NAIVE->NAIVE must be 0, got %f", row[Naive])
	}
	return nil
}

// EffectMode selects how treatment modifies the outgoing distribution.
type EffectMode string

const (
	// EffectOverride replaces named target probabilities with calibrated
	// treated values and spreads the residual mass over the remaining
	// targets in proportion to their base probabilities.
	EffectOverride EffectMode = "override"
	// EffectReweight multiplies each edge by its multiplier and renormalizes.
	EffectReweight EffectMode = "reweight"
)

// Config parameterizes NewModel.
type Config struct {
	Transitions          TransitionTable
	TreatedOverrides     TransitionTable // partial rows; nil selects DefaultTreatedOverrides in override mode
	TreatmentMultipliers TransitionTable // per-edge multipliers; nil selects DefaultMultipliers in reweight mode
	EffectMode           EffectMode      // "" is EffectOverride

	// CalibrationDays is the interval the probabilities were estimated over,
	// StepDays the interval one Transition call represents. When both are set
	// and differ, every non-NAIVE row is rescaled by compounding.
	CalibrationDays int
	StepDays        int
}

// Model samples next states. Tables are immutable after construction; only
// the RNG advances.
type Model struct {
	base    TransitionTable
	treated TransitionTable
	rng     *rand.Rand
}

// NewModel validates cfg, precomputes the treated table and seeds the
// internal RNG.
func NewModel(cfg Config, seed int64) (*Model, error) {
	if cfg.Transitions == nil {
		return nil, fmt.Errorf("disease model: transitions are required")
	}
	if err := cfg.Transitions.Validate(); err != nil {
		return nil, err
	}
	base := cfg.Transitions.Clone()

	var treated TransitionTable
	var err error
	switch cfg.EffectMode {
	case "", EffectOverride:
		overrides := cfg.TreatedOverrides
		if overrides == nil {
			overrides = DefaultTreatedOverrides()
		}
		treated, err = buildTreated(base, overrides, applyOverride)
	case EffectReweight:
		multipliers := cfg.TreatmentMultipliers
		if multipliers == nil {
			multipliers = DefaultMultipliers()
		}
		treated, err = buildTreated(base, multipliers, applyMultipliers)
	default:
		return nil, fmt.Errorf("disease model: unknown effect mode %q; valid: override, reweight", cfg.EffectMode)
	}
	if err != nil {
		return nil, err
	}
	if err := treated.Validate(); err != nil {
		return nil, fmt.Errorf("treated %w", err)
	}

	if cfg.CalibrationDays > 0 && cfg.StepDays > 0 && cfg.CalibrationDays != cfg.StepDays {
		base = rescaleTable(base, cfg.CalibrationDays, cfg.StepDays)
		treated = rescaleTable(treated, cfg.CalibrationDays, cfg.StepDays)
		logrus.Debugf("disease model: rescaled transitions from %d-day to %d-day steps", cfg.CalibrationDays, cfg.StepDays)
	}

	return &Model{
		base:    base,
		treated: treated,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// WithRand returns a model sharing m's tables but drawing from rng.
// Engines use it to bind the model to their own subsystem stream.
func (m *Model) WithRand(rng *rand.Rand) *Model {
	return &Model{base: m.base, treated: m.treated, rng: rng}
}

// Transition samples the next state. NAIVE ignores the treated flag.
func (m *Model) Transition(current State, treated bool) State {
	row := m.row(current, treated)
	if row == nil {
		return current
	}
	u := m.rng.Float64()
	cumulative := 0.0
	last := current
	for _, s := range AllStates {
		p := row[s]
		if p <= 0 {
			continue
		}
		cumulative += p
		last = s
		if u < cumulative {
			return s
		}
	}
	return last
}

// Probabilities returns a copy of the distribution Transition samples from.
func (m *Model) Probabilities(current State, treated bool) Distribution {
	row := m.row(current, treated)
	if row == nil {
		return Distribution{}
	}
	return row.clone()
}

func (m *Model) row(current State, treated bool) Distribution {
	if treated && current != Naive {
		return m.treated[current]
	}
	return m.base[current]
}

type rowAdjuster func(src State, base, adjust Distribution) (Distribution, error)

func buildTreated(base, adjustments TransitionTable, adjust rowAdjuster) (TransitionTable, error) {
	treated := make(TransitionTable, len(base))
	for _, src := range AllStates {
		adj, ok := adjustments[src]
		if src == Naive || !ok {
			treated[src] = base[src].clone()
			continue
		}
		row, err := adjust(src, base[src], adj)
		if err != nil {
			return nil, err
		}
		treated[src] = row
	}
	return treated, nil
}

// applyOverride pins the named targets to their treated values. The residual
// mass goes to the remaining targets in proportion to their base weight; if
// none remain, the pinned values are renormalized.
func applyOverride(src State, base, override Distribution) (Distribution, error) {
	for target, p := range override {
		if !target.Valid() || math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("treated override %s->%v: invalid probability %f", src, target, p)
		}
	}
	pinned := override.Sum()
	if pinned > 1+probabilityTolerance {
		return nil, fmt.Errorf("treated override for %s sums to %.4f, exceeds 1", src, pinned)
	}

	out := make(Distribution, len(AllStates))
	remainingBase := 0.0
	for _, s := range AllStates {
		if p, ok := override[s]; ok {
			out[s] = p
			continue
		}
		remainingBase += base[s]
	}
	residual := math.Max(0, 1-pinned)
	if remainingBase > 0 {
		for _, s := range AllStates {
			if _, ok := override[s]; !ok {
				out[s] = base[s] / remainingBase * residual
			}
		}
		return out, nil
	}
	if pinned <= 0 {
		return nil, fmt.Errorf("treated override for %s leaves no probability mass", src)
	}
	for s := range out {
		out[s] /= pinned
	}
	return out, nil
}

// applyMultipliers scales each edge and renormalizes. Missing multipliers
// are 1.
func applyMultipliers(src State, base, multipliers Distribution) (Distribution, error) {
	out := make(Distribution, len(AllStates))
	total := 0.0
	for _, s := range AllStates {
		m, ok := multipliers[s]
		if !ok {
			m = 1
		}
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("treatment multiplier %s->%s must be finite and non-negative, got %f", src, s, m)
		}
		out[s] = base[s] * m
		total += out[s]
	}
	if total <= 0 {
		return nil, fmt.Errorf("treatment multipliers for %s leave no probability mass", src)
	}
	for s := range out {
		out[s] /= total
	}
	return out, nil
}

// rescaleTable converts every off-diagonal edge of non-NAIVE rows from the
// calibration interval to the step interval and puts the remainder on the
// self-transition. NAIVE is an initial assignment, not a hazard, and is kept.
func rescaleTable(t TransitionTable, calibrationDays, stepDays int) TransitionTable {
	out := make(TransitionTable, len(t))
	for _, src := range AllStates {
		row := t[src]
		if src == Naive {
			out[src] = row.clone()
			continue
		}
		converted := make(Distribution, len(AllStates))
		leaving := 0.0
		for _, s := range AllStates {
			if s == src {
				continue
			}
			converted[s] = rates.Rescale(row[s], float64(calibrationDays), float64(stepDays))
			leaving += converted[s]
		}
		if leaving > 1 {
			for s := range converted {
				converted[s] /= leaving
			}
			leaving = 1
		}
		converted[src] = 1 - leaving
		out[src] = converted
	}
	return out
}
