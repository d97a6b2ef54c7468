package cmd

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sim "github.com/amd-sim/amd-sim/sim"
	"github.com/amd-sim/amd-sim/sim/protocol"
)

// newTestCommand returns a command carrying the run flags, parsed from args.
func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	registerSimulationFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestBuildRunConfig_Defaults(t *testing.T) {
	// GIVEN no flags
	cmd := newTestCommand(t)

	// WHEN building the configuration
	cfg, err := buildRunConfig(cmd)
	require.NoError(t, err)

	// THEN the standard 100-patient, five-year run is produced
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 5.0, cfg.DurationYears)
	require.NotNil(t, cfg.Population.NPatients)
	assert.Equal(t, 100, *cfg.Population.NPatients)
	minDays, maxDays := cfg.Protocol.Bounds()
	assert.Equal(t, 28, minDays)
	assert.Equal(t, 112, maxDays)
	assert.Nil(t, cfg.Discontinuation)
	assert.Nil(t, cfg.Heterogeneity)
	assert.NoError(t, cfg.Validate())
}

func TestBuildRunConfig_Flags(t *testing.T) {
	cmd := newTestCommand(t,
		"--seed", "9", "--years", "2", "--arrival-rate", "3",
		"--progression", "per_visit", "--noise", "4", "--trace", "decisions",
		"--discontinuation", "--heterogeneity", "--visit-metadata",
		"--fixed-interval", "56", "--start-date", "2025-06-01")

	cfg, err := buildRunConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, 2.0, cfg.DurationYears)
	assert.Nil(t, cfg.Population.NPatients)
	require.NotNil(t, cfg.Population.PatientArrivalRate)
	assert.Equal(t, 3.0, *cfg.Population.PatientArrivalRate)
	assert.Equal(t, sim.ProgressionPerVisit, cfg.Progression.Mode)
	assert.Equal(t, 4.0, cfg.MeasurementNoiseSD)
	assert.Equal(t, "decisions", string(cfg.TraceLevel))
	assert.NotNil(t, cfg.Discontinuation)
	assert.NotNil(t, cfg.Heterogeneity)
	assert.Len(t, cfg.Enhancers, 1)
	assert.Equal(t, 2025, cfg.StartDate.Year())
	_, ok := cfg.Protocol.(*protocol.FixedInterval)
	assert.True(t, ok)
	assert.NoError(t, cfg.Validate())
}

func TestBuildRunConfig_FlagsOverrideScenario(t *testing.T) {
	// GIVEN a scenario and explicit flags for seed and cohort size
	path := writeScenario(t, scenarioYAML)
	cmd := newTestCommand(t, "--scenario", path, "--seed", "11", "--n-patients", "5", "--max-interval", "84")

	// WHEN building the configuration
	cfg, err := buildRunConfig(cmd)
	require.NoError(t, err)

	// THEN the flags win and the rest comes from the scenario
	assert.Equal(t, int64(11), cfg.Seed)
	assert.Equal(t, 5, *cfg.Population.NPatients)
	assert.Equal(t, 2.0, cfg.DurationYears)
	assert.Equal(t, "nhs", cfg.Discontinuation.Name)
	_, maxDays := cfg.Protocol.Bounds()
	assert.Equal(t, 84, maxDays)
}

func TestBuildRunConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad progression", []string{"--progression", "hourly"}},
		{"bad interval bounds", []string{"--min-interval", "100", "--max-interval", "50"}},
		{"bad start date", []string{"--start-date", "June"}},
		{"missing profile", []string{"--profile", "/nonexistent/profile.yaml"}},
		{"missing scenario", []string{"--scenario", "/nonexistent/scenario.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildRunConfig(newTestCommand(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestPrint_ResultsWrittenToStdout(t *testing.T) {
	// GIVEN a completed run
	cmd := newTestCommand(t, "--n-patients", "10", "--years", "1", "--discontinuation", "--trace", "decisions")
	cfg, err := buildRunConfig(cmd)
	require.NoError(t, err)
	e, err := sim.NewEngine(sim.EngineDES, cfg)
	require.NoError(t, err)
	r, err := e.Run()
	require.NoError(t, err)

	// Capture stdout
	old := os.Stdout
	rd, w, _ := os.Pipe()
	os.Stdout = w

	// WHEN Print is called
	r.Print()

	// Restore stdout and read captured output
	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, rd)
	output := buf.String()

	// THEN the headline metrics appear on stdout
	assert.Contains(t, output, "Simulation Results")
	assert.Contains(t, output, "Total Injections")
	assert.Contains(t, output, "Final State Distribution")
	assert.Contains(t, output, "Traced Decisions")
	assert.Contains(t, output, r.RunID)
}
