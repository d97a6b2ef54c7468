package discontinuation

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/rates"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// only returns a profile with just the given categories enabled.
func only(enabled map[Category]map[string]float64) Profile {
	p := DisabledProfile()
	for c, params := range enabled {
		p.Categories[c] = CategoryConfig{Enabled: true, Params: params}
	}
	return p
}

func newManager(t *testing.T, p Profile, seed int64) *Manager {
	t.Helper()
	m, err := NewManager(p, Options{MaxIntervalDays: 112}, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return m
}

// seen creates a patient with one recorded visit at the given measured vision.
func seen(t *testing.T, id string, vision float64, state disease.State) *patient.Patient {
	t.Helper()
	p := patient.New(id, 0, int(vision), start)
	require.NoError(t, p.RecordVisit(patient.Visit{Date: start, State: state, Vision: vision, TreatmentGiven: true}))
	return p
}

func TestEvaluate_PoorResponseOutranksStableMaxInterval(t *testing.T) {
	// GIVEN a patient who meets both poor_response and stable_max_interval
	m := newManager(t, only(map[Category]map[string]float64{
		PoorResponse:      {"vision_threshold": 50, "consecutive_visits": 1},
		StableMaxInterval: {"consecutive_visits": 1, "probability": 1},
	}), 1)
	p := seen(t, "P1", 30, disease.Stable)

	// WHEN evaluated at maximum interval
	d := m.Evaluate(p, start, 16, true)

	// THEN poor_response wins and, being terminal, schedules no monitoring
	require.True(t, d.Discontinue)
	assert.Equal(t, PoorResponse, d.Category)
	assert.Empty(t, d.MonitoringDates)
	assert.Equal(t, 1, m.Stats().Discontinuations[PoorResponse])
	assert.Equal(t, 0, m.Stats().Discontinuations[StableMaxInterval])
}

func TestEvaluate_CustomPriority(t *testing.T) {
	prof := only(map[Category]map[string]float64{
		PoorResponse:      {"vision_threshold": 50, "consecutive_visits": 1},
		StableMaxInterval: {"consecutive_visits": 1, "probability": 1},
	})
	prof.Priority = []Category{StableMaxInterval, PoorResponse, Mortality, SystemDiscontinuation, ReauthorizationFailure, Premature}
	prof.MonitoringSchedules = map[Category][]int{StableMaxInterval: {24, 12}}
	m := newManager(t, prof, 1)
	p := seen(t, "P1", 30, disease.Stable)

	d := m.Evaluate(p, start, 16, true)

	require.True(t, d.Discontinue)
	assert.Equal(t, StableMaxInterval, d.Category)
	assert.Equal(t, []time.Time{start.AddDate(0, 0, 84), start.AddDate(0, 0, 168)}, d.MonitoringDates)
}

func TestEvaluate_StableCounterNeedsMaxInterval(t *testing.T) {
	m := newManager(t, only(map[Category]map[string]float64{
		StableMaxInterval: {"consecutive_visits": 2, "probability": 1},
	}), 1)
	p := seen(t, "P1", 70, disease.Stable)

	assert.False(t, m.Evaluate(p, start, 12, true).Discontinue)
	assert.Equal(t, 0, p.ConsecutiveStableVisits(), "below max interval resets the counter")
	assert.False(t, m.Evaluate(p, start, 16, true).Discontinue)
	assert.Equal(t, 1, p.ConsecutiveStableVisits())
	assert.True(t, m.Evaluate(p, start, 16, true).Discontinue)
}

func TestEvaluate_PoorVisionCounterResets(t *testing.T) {
	m := newManager(t, only(map[Category]map[string]float64{
		PoorResponse: {"vision_threshold": 40, "consecutive_visits": 2},
	}), 1)
	p := seen(t, "P1", 30, disease.Active)
	assert.False(t, m.Evaluate(p, start, 4, false).Discontinue)

	require.NoError(t, p.RecordVisit(patient.Visit{Date: start, State: disease.Active, Vision: 45}))
	assert.False(t, m.Evaluate(p, start, 4, false).Discontinue)
	assert.Equal(t, 0, p.ConsecutivePoorVisionVisits())

	require.NoError(t, p.RecordVisit(patient.Visit{Date: start, State: disease.Active, Vision: 30}))
	assert.False(t, m.Evaluate(p, start, 4, false).Discontinue)
	require.NoError(t, p.RecordVisit(patient.Visit{Date: start, State: disease.Active, Vision: 30}))
	assert.True(t, m.Evaluate(p, start, 4, false).Discontinue)
}

func TestEvaluate_DiscontinuedPatientNotReevaluated(t *testing.T) {
	m := newManager(t, only(map[Category]map[string]float64{
		Mortality: {"annual_rate": 1},
	}), 1)
	p := seen(t, "P1", 60, disease.Stable)

	d := m.Evaluate(p, start, 4, true)
	require.True(t, d.Discontinue)
	p.Discontinue(start, string(d.Category), d.Reason)

	assert.False(t, m.Evaluate(p, start, 4, true).Discontinue)
	assert.Equal(t, 1, m.Stats().Evaluations)
}

func TestMortality_PerIntervalProbability(t *testing.T) {
	// GIVEN an annual mortality rate of 0.5 and a 52-week interval
	const annual = 0.5
	want := 1 - math.Pow(1-annual, 1/(365.0/364.0))
	assert.InDelta(t, want, rates.AnnualToPerInterval(annual, 364), 1e-12)

	m := newManager(t, only(map[Category]map[string]float64{
		Mortality: {"annual_rate": annual},
	}), 7)

	// WHEN many independent patients are evaluated once
	const n = 20000
	deaths := 0
	for i := 0; i < n; i++ {
		p := seen(t, fmt.Sprintf("P%d", i), 60, disease.Stable)
		if m.Evaluate(p, start, 52, true).Discontinue {
			deaths++
		}
	}

	// THEN the observed fraction matches the per-interval probability
	assert.InDelta(t, want, float64(deaths)/n, 0.02)
}

func TestPremature_AppliesVisionPenalty(t *testing.T) {
	prof := only(map[Category]map[string]float64{
		Premature: {
			"min_interval_weeks": 8, "min_vision": 20, "target_rate": 1,
			"vision_loss_mean": 10, "vision_loss_std": 0,
		},
	})
	prof.MonitoringSchedules = map[Category][]int{Premature: {8, 16}}
	m := newManager(t, prof, 3)

	// not eligible below the minimum interval
	p := seen(t, "P1", 60, disease.Stable)
	assert.False(t, m.Evaluate(p, start, 4, true).Discontinue)

	d := m.Evaluate(p, start, 8, true)
	require.True(t, d.Discontinue)
	assert.Equal(t, Premature, d.Category)
	assert.Equal(t, 10.0, d.VisionPenalty)
	assert.Equal(t, 50.0, p.CurrentVision())
	assert.Len(t, d.MonitoringDates, 2)
	assert.Equal(t, 10.0, m.Stats().PrematureVisionPenalty)
}

func TestReauthorization_OnlyAfterThreshold(t *testing.T) {
	m := newManager(t, only(map[Category]map[string]float64{
		ReauthorizationFailure: {"threshold_weeks": 52, "probability": 1},
	}), 1)
	p := seen(t, "P1", 60, disease.Stable)

	assert.False(t, m.Evaluate(p, start.AddDate(0, 0, 50*7), 8, true).Discontinue)
	d := m.Evaluate(p, start.AddDate(0, 0, 53*7), 8, true)
	assert.True(t, d.Discontinue)
	assert.Equal(t, ReauthorizationFailure, d.Category)
}

func TestReauthorization_CountsOnlyTimeOnTreatment(t *testing.T) {
	// GIVEN a patient who spent 20 weeks discontinued inside their first 60 weeks
	m := newManager(t, only(map[Category]map[string]float64{
		ReauthorizationFailure: {"threshold_weeks": 52, "probability": 1},
	}), 1)
	p := seen(t, "P1", 60, disease.Stable)
	require.True(t, p.Discontinue(start.AddDate(0, 0, 10*7), string(SystemDiscontinuation), "test"))
	require.NoError(t, p.RestartTreatment(start.AddDate(0, 0, 30*7)))

	// WHEN evaluated at week 60, which is 40 weeks on treatment
	d := m.Evaluate(p, start.AddDate(0, 0, 60*7), 8, true)

	// THEN the threshold is not yet reached
	assert.False(t, d.Discontinue)
	assert.InDelta(t, 40.0, p.WeeksOnTreatmentAt(start.AddDate(0, 0, 60*7)), 1e-9)

	// AND it is at week 73, 53 weeks on treatment
	d = m.Evaluate(p, start.AddDate(0, 0, 73*7), 8, true)
	assert.True(t, d.Discontinue)
	assert.Equal(t, ReauthorizationFailure, d.Category)
}

func TestSystemDiscontinuation_FixedVisitsPerYear(t *testing.T) {
	// the per-visit probability ignores the patient's interval unless asked
	m := newManager(t, only(map[Category]map[string]float64{
		SystemDiscontinuation: {"annual_probability": 0.3},
	}), 11)
	const n = 20000
	fired := 0
	for i := 0; i < n; i++ {
		p := seen(t, fmt.Sprintf("P%d", i), 60, disease.Stable)
		if m.Evaluate(p, start, 16, true).Discontinue {
			fired++
		}
	}
	assert.InDelta(t, rates.AnnualToPerVisit(0.3, DefaultSystemVisitsPerYear), float64(fired)/n, 0.01)
}

// discontinued returns a patient discontinued under c with vision dropped by loss.
func discontinued(t *testing.T, c Category, loss float64) *patient.Patient {
	t.Helper()
	p := seen(t, "P1", 70, disease.Stable)
	require.True(t, p.Discontinue(start, string(c), "test"))
	p.ApplyVisionChange(-loss)
	return p
}

func TestRetreatment_TerminalCategoriesNeverResume(t *testing.T) {
	prof := DefaultProfile()
	prof.Retreatment = RetreatmentConfig{RequireFluid: false, DetectionProbability: 1, Probability: 1}
	m := newManager(t, prof, 1)

	for _, c := range []Category{Mortality, PoorResponse} {
		ok, reason := m.EvaluateRetreatment(discontinued(t, c, 30), true, start.AddDate(0, 0, 84))
		assert.False(t, ok, c)
		assert.Empty(t, reason, c)
	}
	assert.Equal(t, 0, m.Stats().RetreatmentEvaluations)
}

func TestRetreatment_Gates(t *testing.T) {
	prof := DefaultProfile()
	prof.Retreatment = RetreatmentConfig{RequireFluid: true, MinVisionLoss: 5, DetectionProbability: 1, Probability: 1}

	tests := []struct {
		name  string
		fluid bool
		loss  float64
		want  bool
	}{
		{"fluid and loss", true, 8, true},
		{"no fluid", false, 8, false},
		{"loss below minimum", true, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, prof, 1)
			ok, reason := m.EvaluateRetreatment(discontinued(t, StableMaxInterval, tt.loss), tt.fluid, start.AddDate(0, 0, 84))
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Contains(t, reason, "12 weeks after stable_max_interval")
				assert.Equal(t, 1, m.Stats().RetreatmentsByCategory[StableMaxInterval])
			}
		})
	}
}

func TestRetreatment_NotDiscontinued(t *testing.T) {
	m := newManager(t, DefaultProfile(), 1)
	ok, _ := m.EvaluateRetreatment(seen(t, "P1", 60, disease.Active), true, start)
	assert.False(t, ok)
}

func TestRecurrenceProbability(t *testing.T) {
	m := newManager(t, DefaultProfile(), 1)
	assert.Zero(t, m.RecurrenceProbability(Mortality, 0, 365))
	assert.InDelta(t, 0.13, m.RecurrenceProbability(StableMaxInterval, 0, 365), 1e-9)
	assert.Zero(t, m.RecurrenceProbability(StableMaxInterval, 400, 400))

	// conditional on surviving the first year
	got := m.RecurrenceProbability(StableMaxInterval, 365, 730)
	cum2 := 0.13 + (0.40-0.13)/2
	assert.InDelta(t, (cum2-0.13)/(1-0.13), got, 1e-9)
}

func TestStats_ReturnsSnapshot(t *testing.T) {
	m := newManager(t, only(map[Category]map[string]float64{Mortality: {"annual_rate": 1}}), 1)
	m.Evaluate(seen(t, "P1", 60, disease.Stable), start, 4, true)
	s := m.Stats()
	s.Discontinuations[Mortality] = 99
	assert.Equal(t, 1, m.Stats().Discontinuations[Mortality])
}

func TestNewManager_RequiresRand(t *testing.T) {
	_, err := NewManager(DefaultProfile(), Options{}, nil)
	assert.Error(t, err)
}

func TestEvaluateRecurrence(t *testing.T) {
	prof := DefaultProfile()
	prof.RecurrenceRates = map[Category]map[float64]float64{StableMaxInterval: {0.01: 1}}
	m := newManager(t, prof, 1)

	// active patients are not governed by a curve
	p := seen(t, "P1", 60, disease.Stable)
	recurred, governed := m.EvaluateRecurrence(p, start.AddDate(0, 0, 14), 14)
	assert.False(t, recurred)
	assert.False(t, governed)

	// cumulative probability 1 within the first tick
	require.True(t, p.Discontinue(start, string(StableMaxInterval), "test"))
	recurred, governed = m.EvaluateRecurrence(p, start.AddDate(0, 0, 14), 14)
	assert.True(t, recurred)
	assert.True(t, governed)

	// categories without a curve fall back to the transition table
	q := seen(t, "P2", 60, disease.Stable)
	require.True(t, q.Discontinue(start, string(Premature), "test"))
	_, governed = m.EvaluateRecurrence(q, start.AddDate(0, 0, 14), 14)
	assert.False(t, governed)

	// terminal categories never recur
	r := seen(t, "P3", 60, disease.Stable)
	require.True(t, r.Discontinue(start, string(PoorResponse), "test"))
	recurred, _ = m.EvaluateRecurrence(r, start.AddDate(0, 0, 14), 14)
	assert.False(t, recurred)
}
