package disease

// DefaultCalibrationDays is the visit interval the literature tables were
// estimated over.
const DefaultCalibrationDays = 28

// DefaultTransitions returns the literature-derived untreated transition
// probabilities, calibrated per clinical visit.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		Naive:        {Naive: 0.0, Stable: 0.58, Active: 0.32, HighlyActive: 0.10},
		Stable:       {Naive: 0.0, Stable: 0.83, Active: 0.12, HighlyActive: 0.05},
		Active:       {Naive: 0.0, Stable: 0.21, Active: 0.67, HighlyActive: 0.12},
		HighlyActive: {Naive: 0.0, Stable: 0.07, Active: 0.15, HighlyActive: 0.78},
	}
}

// DefaultTreatedOverrides returns the hand-calibrated treated rows used in
// override mode.
func DefaultTreatedOverrides() TransitionTable {
	return TransitionTable{
		Stable:       {Stable: 0.88, Active: 0.09, HighlyActive: 0.03},
		Active:       {Stable: 0.63, Active: 0.32, HighlyActive: 0.05},
		HighlyActive: {Stable: 0.21, Active: 0.42, HighlyActive: 0.37},
	}
}

// DefaultMultipliers returns the per-edge treatment multipliers used in
// reweight mode.
func DefaultMultipliers() TransitionTable {
	return TransitionTable{
		Stable:       {Stable: 1.2, Active: 0.8, HighlyActive: 0.5},
		Active:       {Stable: 3.0, HighlyActive: 0.4},
		HighlyActive: {Stable: 3.0, Active: 3.0},
	}
}

// DefaultConfig returns the literature model in override mode. The tables
// are tagged with their 28-day calibration interval so a time-based engine
// rescales them to its tick.
func DefaultConfig() Config {
	return Config{
		Transitions:      DefaultTransitions(),
		TreatedOverrides: DefaultTreatedOverrides(),
		EffectMode:       EffectOverride,
		CalibrationDays:  DefaultCalibrationDays,
	}
}
