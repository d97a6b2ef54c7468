package disease

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultModel(t *testing.T, seed int64) *Model {
	t.Helper()
	m, err := NewModel(DefaultConfig(), seed)
	require.NoError(t, err)
	return m
}

func TestTransition_NaiveNeverSelfTransitions(t *testing.T) {
	m := newDefaultModel(t, 42)
	for i := 0; i < 5000; i++ {
		for _, treated := range []bool{false, true} {
			if got := m.Transition(Naive, treated); got == Naive {
				t.Fatalf("draw %d (treated=%v): NAIVE transitioned to itself", i, treated)
			}
		}
	}
}

func TestProbabilities_RowsSumToOne(t *testing.T) {
	configs := map[string]Config{
		"override": DefaultConfig(),
		"reweight": {Transitions: DefaultTransitions(), EffectMode: EffectReweight},
		"rescaled": {Transitions: DefaultTransitions(), CalibrationDays: 28, StepDays: 14},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			m, err := NewModel(cfg, 1)
			require.NoError(t, err)
			for _, s := range AllStates {
				for _, treated := range []bool{false, true} {
					row := m.Probabilities(s, treated)
					assert.InDelta(t, 1.0, row.Sum(), 1e-6, "state=%s treated=%v", s, treated)
					for target, p := range row {
						assert.GreaterOrEqual(t, p, 0.0, "%s->%s", s, target)
					}
				}
			}
		})
	}
}

func TestTransition_TreatmentImprovesStability(t *testing.T) {
	// GIVEN many trials of 50 draws from ACTIVE, each with a fixed seed
	trials := 20
	for trial := 0; trial < trials; trial++ {
		seed := int64(1000 + trial)
		untreated := newDefaultModel(t, seed)
		treated := newDefaultModel(t, seed)

		stableUntreated, stableTreated := 0, 0
		for i := 0; i < 200; i++ {
			if untreated.Transition(Active, false) == Stable {
				stableUntreated++
			}
			if treated.Transition(Active, true) == Stable {
				stableTreated++
			}
		}

		// THEN treated draws land on STABLE strictly more often
		assert.Greater(t, stableTreated, stableUntreated, "seed %d", seed)
	}
}

func TestTransition_DeterministicGivenSeed(t *testing.T) {
	a := newDefaultModel(t, 7)
	b := newDefaultModel(t, 7)
	state := Naive
	for i := 0; i < 500; i++ {
		treated := i%3 == 0
		next := a.Transition(state, treated)
		assert.Equal(t, next, b.Transition(state, treated))
		state = next
	}
}

func TestWithRand_SharesTablesNotStream(t *testing.T) {
	m := newDefaultModel(t, 3)
	bound := m.WithRand(rand.New(rand.NewSource(99)))
	assert.Equal(t, m.Probabilities(Active, true), bound.Probabilities(Active, true))

	fresh := newDefaultModel(t, 99)
	for i := 0; i < 100; i++ {
		assert.Equal(t, fresh.Transition(Stable, false), bound.Transition(Stable, false))
	}
}

func TestNewModel_RejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(TransitionTable)
	}{
		{"row does not sum to one", func(tt TransitionTable) { tt[Stable][Stable] = 0.5 }},
		{"missing row", func(tt TransitionTable) { delete(tt, HighlyActive) }},
		{"naive self transition", func(tt TransitionTable) {
			tt[Naive] = Distribution{Naive: 0.1, Stable: 0.5, Active: 0.3, HighlyActive: 0.1}
		}},
		{"negative probability", func(tt TransitionTable) {
			tt[Active] = Distribution{Stable: -0.1, Active: 1.0, HighlyActive: 0.1}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := DefaultTransitions()
			tt.mutate(table)
			_, err := NewModel(Config{Transitions: table}, 1)
			assert.Error(t, err)
		})
	}
}

func TestNewModel_RejectsOverrideAboveOne(t *testing.T) {
	_, err := NewModel(Config{
		Transitions:      DefaultTransitions(),
		TreatedOverrides: TransitionTable{Active: {Stable: 0.8, Active: 0.4}},
	}, 1)
	assert.Error(t, err)
}

func TestNewModel_RejectsUnknownEffectMode(t *testing.T) {
	_, err := NewModel(Config{Transitions: DefaultTransitions(), EffectMode: "additive"}, 1)
	assert.Error(t, err)
}

func TestApplyOverride_PartialRowSpreadsResidual(t *testing.T) {
	// GIVEN ACTIVE with only STABLE pinned at 0.5
	m, err := NewModel(Config{
		Transitions:      DefaultTransitions(),
		TreatedOverrides: TransitionTable{Active: {Stable: 0.5}},
	}, 1)
	require.NoError(t, err)

	row := m.Probabilities(Active, true)

	// THEN STABLE is pinned and ACTIVE:HIGHLY_ACTIVE keep the base 0.67:0.12 ratio
	assert.InDelta(t, 0.5, row[Stable], 1e-12)
	assert.InDelta(t, 0.67/0.79*0.5, row[Active], 1e-12)
	assert.InDelta(t, 0.12/0.79*0.5, row[HighlyActive], 1e-12)
}

func TestApplyMultipliers_Renormalizes(t *testing.T) {
	m, err := NewModel(Config{
		Transitions:          DefaultTransitions(),
		EffectMode:           EffectReweight,
		TreatmentMultipliers: TransitionTable{Active: {Stable: 2.0}},
	}, 1)
	require.NoError(t, err)

	row := m.Probabilities(Active, true)
	total := 0.21*2 + 0.67 + 0.12
	assert.InDelta(t, 0.42/total, row[Stable], 1e-12)
	assert.InDelta(t, 1.0, row.Sum(), 1e-9)
}

func TestRescale_HalvesStepKeepsSelfRemainder(t *testing.T) {
	m, err := NewModel(Config{Transitions: DefaultTransitions(), CalibrationDays: 28, StepDays: 14}, 1)
	require.NoError(t, err)

	row := m.Probabilities(Stable, false)
	// two 14-day steps reproduce the 28-day edge probability
	assert.InDelta(t, 0.12, 1-(1-row[Active])*(1-row[Active]), 1e-9)
	assert.Greater(t, row[Stable], 0.83)

	naive := m.Probabilities(Naive, false)
	assert.Equal(t, DefaultTransitions()[Naive][Stable], naive[Stable])
}

func TestParseState(t *testing.T) {
	s, err := ParseState("highly_active")
	require.NoError(t, err)
	assert.Equal(t, HighlyActive, s)
	assert.Equal(t, "HIGHLY_ACTIVE", s.String())

	_, err = ParseState("dormant")
	assert.Error(t, err)

	assert.True(t, Active.HasFluid())
	assert.False(t, Stable.HasFluid())
}
