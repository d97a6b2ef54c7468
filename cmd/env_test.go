package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnvOverrides(t *testing.T) {
	// GIVEN environment values for seed and cohort size
	t.Setenv("AMDSIM_SEED", "99")
	t.Setenv("AMDSIM_N_PATIENTS", "12")

	// WHEN only the seed is also passed on the command line
	cmd := newTestCommand(t, "--seed", "5")
	require.NoError(t, applyEnvOverrides(cmd.Flags()))

	// THEN the explicit flag wins and the other comes from the environment
	assert.Equal(t, int64(5), seed)
	assert.Equal(t, 12, nPatients)
	assert.True(t, cmd.Flags().Changed("n-patients"))
	assert.False(t, cmd.Flags().Changed("years"))
}

func TestApplyEnvOverrides_InvalidValue(t *testing.T) {
	t.Setenv("AMDSIM_YEARS", "forever")
	cmd := newTestCommand(t)
	err := applyEnvOverrides(cmd.Flags())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AMDSIM_YEARS")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "N_PATIENTS", envKey("n-patients"))
	assert.Equal(t, "SEED", envKey("seed"))
}
