package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/rates"
)

func TestNewCare_TimeBasedConvertsDefaultTablesToTicks(t *testing.T) {
	// GIVEN the default disease model on 14-day time-based progression
	cfg := newStandardConfig(t, 10, 1, 42)

	// WHEN the run components are built
	c, err := newCare(cfg)
	require.NoError(t, err)

	// THEN each off-diagonal edge is the per-tick equivalent of the per-visit value
	row := c.disease.Probabilities(disease.Stable, false)
	assert.InDelta(t, rates.PerVisitToPerTick(0.12, 28, 14), row[disease.Active], 1e-12)
	assert.InDelta(t, rates.PerVisitToPerTick(0.05, 28, 14), row[disease.HighlyActive], 1e-12)
	assert.InDelta(t, 1.0, row.Sum(), 1e-9)

	treated := c.disease.Probabilities(disease.Active, true)
	assert.Less(t, treated[disease.Stable], disease.DefaultTreatedOverrides()[disease.Active][disease.Stable])
}

func TestNewCare_TickMatchingCalibrationKeepsTables(t *testing.T) {
	// GIVEN a 28-day tick, the interval the default tables were estimated over
	cfg := newStandardConfig(t, 10, 1, 42)
	cfg.Progression.TickDays = 28

	// WHEN the run components are built
	c, err := newCare(cfg)
	require.NoError(t, err)

	// THEN the per-visit values are used as they are
	row := c.disease.Probabilities(disease.Stable, false)
	assert.InDelta(t, 0.12, row[disease.Active], 1e-12)
}

func TestNewCare_PerVisitModeKeepsPerVisitTables(t *testing.T) {
	// GIVEN legacy per-visit progression
	cfg := newStandardConfig(t, 10, 1, 42)
	cfg.Progression.Mode = ProgressionPerVisit

	// WHEN the run components are built
	c, err := newCare(cfg)
	require.NoError(t, err)

	// THEN one transition per visit uses the per-visit table
	row := c.disease.Probabilities(disease.Stable, false)
	assert.InDelta(t, 0.12, row[disease.Active], 1e-12)
}
