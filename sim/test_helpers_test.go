package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amd-sim/amd-sim/sim/discontinuation"
	"github.com/amd-sim/amd-sim/sim/heterogeneity"
	"github.com/amd-sim/amd-sim/sim/protocol"
)

// newStandardConfig returns a fixed-cohort run on the standard
// treat-and-extend protocol with default disease, baseline and vision models.
func newStandardConfig(t *testing.T, n int, years float64, seed int64) RunConfig {
	t.Helper()
	proto, err := protocol.NewStandard(28, 112, 14, 14)
	require.NoError(t, err)
	return RunConfig{
		Name:          "test",
		Seed:          seed,
		DurationYears: years,
		Population:    PopulationConfig{NPatients: IntPtr(n)},
		Protocol:      proto,
	}
}

// withDiscontinuation enables the default discontinuation profile.
func withDiscontinuation(cfg RunConfig) RunConfig {
	profile := discontinuation.DefaultProfile()
	cfg.Discontinuation = &profile
	return cfg
}

// withHeterogeneity enables the default trajectory-class overlay.
func withHeterogeneity(cfg RunConfig) RunConfig {
	het := heterogeneity.DefaultConfig()
	cfg.Heterogeneity = &het
	return cfg
}

// mustRun builds the named engine and runs it.
func mustRun(t *testing.T, engine string, cfg RunConfig) *SimulationResults {
	t.Helper()
	e, err := NewEngine(engine, cfg)
	require.NoError(t, err)
	r, err := e.Run()
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}
