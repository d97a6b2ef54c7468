package sim

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/amd-sim/amd-sim/sim/baseline"
	"github.com/amd-sim/amd-sim/sim/discontinuation"
	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/heterogeneity"
	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/protocol"
	"github.com/amd-sim/amd-sim/sim/trace"
	"github.com/amd-sim/amd-sim/sim/vision"
)

// ProgressionMode selects when disease transitions are evaluated.
type ProgressionMode string

const (
	// ProgressionTimeBased evaluates transitions on a fixed wall-clock
	// cadence for every enrolled patient, independent of visits.
	ProgressionTimeBased ProgressionMode = "time_based"
	// ProgressionPerVisit evaluates one transition per clinical visit. More
	// visits means more transitions; kept for comparison runs only.
	ProgressionPerVisit ProgressionMode = "per_visit"
)

// validProgressionModes maps accepted progression mode strings.
var validProgressionModes = map[ProgressionMode]bool{
	ProgressionTimeBased: true,
	ProgressionPerVisit:  true,
	"":                   true, // empty defaults to time_based
}

// IsValidProgressionMode returns true if the given string is a recognized progression mode.
func IsValidProgressionMode(mode string) bool {
	return validProgressionModes[ProgressionMode(mode)]
}

const (
	DefaultTickDays            = 14
	DefaultTreatmentEffectDays = 112
)

// DefaultStartDate is the epoch used when a run does not set StartDate.
var DefaultStartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrArrivalMode is returned when both or neither of NPatients and
// PatientArrivalRate are set.
var ErrArrivalMode = errors.New("exactly one of n_patients and patient_arrival_rate must be set")

// PopulationConfig groups enrollment parameters. Exactly one of NPatients
// and PatientArrivalRate must be set.
type PopulationConfig struct {
	NPatients          *int     // fixed cohort size, spread over the recruitment window
	PatientArrivalRate *float64 // patients per week, Poisson
	RecruitmentDays    int      // fixed-count window (0 = whole run)
}

// ProgressionConfig groups the disease-progression cadence.
type ProgressionConfig struct {
	Mode                ProgressionMode // "time_based" (default) or "per_visit"
	TickDays            int             // progression cadence in days (default 14)
	TreatmentEffectDays int             // an injection counts as treatment for this long (default 112)
}

// RunConfig is the complete, format-free input of one simulation run.
type RunConfig struct {
	Name          string
	Seed          int64
	DurationYears float64
	StartDate     time.Time // zero = DefaultStartDate

	Population  PopulationConfig
	Progression ProgressionConfig

	Protocol protocol.Protocol
	Disease  disease.Config
	Baseline baseline.Spec

	Vision             vision.Updater // nil = population-average vision.Model
	MeasurementNoiseSD float64        // letters; 0 = exact measurement

	Discontinuation *discontinuation.Profile // nil = never discontinue
	Heterogeneity   *heterogeneity.Config    // nil = population-average patients

	TraceLevel trace.TraceLevel
	Enhancers  []patient.Enhancer
}

// Validate reports configuration errors. It is called by both engines
// before any simulation state is created.
func (c *RunConfig) Validate() error {
	hasN, hasRate := c.Population.NPatients != nil, c.Population.PatientArrivalRate != nil
	if hasN == hasRate {
		return ErrArrivalMode
	}
	if hasN && *c.Population.NPatients < 0 {
		return fmt.Errorf("n_patients must be non-negative, got %d", *c.Population.NPatients)
	}
	if hasRate {
		r := *c.Population.PatientArrivalRate
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Errorf("patient_arrival_rate must be a finite non-negative rate, got %f", r)
		}
	}
	if c.Population.RecruitmentDays < 0 {
		return fmt.Errorf("recruitment days must be non-negative, got %d", c.Population.RecruitmentDays)
	}
	if c.DurationYears <= 0 || math.IsNaN(c.DurationYears) || math.IsInf(c.DurationYears, 0) {
		return fmt.Errorf("duration_years must be positive, got %f", c.DurationYears)
	}
	if c.Protocol == nil {
		return fmt.Errorf("protocol is required")
	}
	if !IsValidProgressionMode(string(c.Progression.Mode)) {
		return fmt.Errorf("unknown progression mode %q; valid: time_based, per_visit", c.Progression.Mode)
	}
	if c.Progression.TickDays < 0 || c.Progression.TreatmentEffectDays < 0 {
		return fmt.Errorf("progression tick and treatment-effect days must be non-negative")
	}
	if c.MeasurementNoiseSD < 0 {
		return fmt.Errorf("measurement noise must be non-negative, got %f", c.MeasurementNoiseSD)
	}
	if !trace.IsValidTraceLevel(string(c.TraceLevel)) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions", c.TraceLevel)
	}
	if c.Discontinuation != nil {
		if err := c.Discontinuation.Validate(); err != nil {
			return err
		}
	}
	if c.Heterogeneity != nil {
		if err := c.Heterogeneity.Validate(); err != nil {
			return fmt.Errorf("heterogeneity: %w", err)
		}
	}
	return nil
}

// withDefaults fills zero-valued optional fields.
func (c RunConfig) withDefaults() RunConfig {
	if c.StartDate.IsZero() {
		c.StartDate = DefaultStartDate
	}
	if c.Progression.Mode == "" {
		c.Progression.Mode = ProgressionTimeBased
	}
	if c.Progression.TickDays == 0 {
		c.Progression.TickDays = DefaultTickDays
	}
	if c.Progression.TreatmentEffectDays == 0 {
		c.Progression.TreatmentEffectDays = DefaultTreatmentEffectDays
	}
	if c.Vision == nil {
		c.Vision = vision.NewModel(0)
	}
	if c.Baseline.Type == "" {
		c.Baseline = baseline.DefaultSpec()
	}
	if c.Disease.Transitions == nil {
		c.Disease = disease.DefaultConfig()
	}
	if c.TraceLevel == "" {
		c.TraceLevel = trace.TraceLevelNone
	}
	return c
}

// HorizonDays is the run length in whole days.
func (c RunConfig) HorizonDays() int {
	return int(math.Round(c.DurationYears * 365))
}

// IntPtr and Float64Ptr build the optional population fields.
func IntPtr(v int) *int { return &v }

func Float64Ptr(v float64) *float64 { return &v }
