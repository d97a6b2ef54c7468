// Package protocol decides, visit by visit, whether to inject and when the
// patient is seen next.
//
// Protocols are shared across all patients of a run and hold no per-patient
// state: the current phase and interval live on the Patient and are written
// back by the engine from the returned Decision.
package protocol

import (
	"fmt"
	"time"

	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/patient"
)

// Decision is the outcome of scheduling the next visit.
type Decision struct {
	Date         time.Time
	IntervalDays int
	Phase        patient.Phase
}

// Protocol is the treatment-decision interface consumed by both engines.
type Protocol interface {
	Name() string
	// ShouldTreat reports whether to inject at the visit on date.
	ShouldTreat(p *patient.Patient, date time.Time) bool
	// NextVisit schedules the next visit after the visit on date. It is
	// called after the visit has been recorded.
	NextVisit(p *patient.Patient, date time.Time, treated bool) Decision
	// Bounds returns the [min, max] interval every decision respects.
	Bounds() (minDays, maxDays int)
	// RestartIntervalDays is the interval applied when treatment resumes.
	RestartIntervalDays() int
	Drug() string
}

// Config parameterizes a treat-and-extend protocol.
type Config struct {
	Name                string
	Drug                string
	MinIntervalDays     int
	MaxIntervalDays     int
	ExtensionDays       int
	ShorteningDays      int
	LoadingDoses        int
	LoadingIntervalDays int
}

// DefaultConfig is the standard aflibercept treat-and-extend regimen:
// three monthly loading doses, then 28–112 days in 14-day steps.
func DefaultConfig() Config {
	return Config{
		Name:                "treat_and_extend",
		Drug:                "aflibercept",
		MinIntervalDays:     28,
		MaxIntervalDays:     112,
		ExtensionDays:       14,
		ShorteningDays:      14,
		LoadingDoses:        3,
		LoadingIntervalDays: 28,
	}
}

// Validate checks interval arithmetic.
func (c Config) Validate() error {
	if c.MinIntervalDays <= 0 {
		return fmt.Errorf("protocol %q: min_interval_days must be positive, got %d", c.Name, c.MinIntervalDays)
	}
	if c.MaxIntervalDays < c.MinIntervalDays {
		return fmt.Errorf("protocol %q: max_interval_days (%d) must be >= min_interval_days (%d)", c.Name, c.MaxIntervalDays, c.MinIntervalDays)
	}
	if c.ExtensionDays < 0 || c.ShorteningDays < 0 {
		return fmt.Errorf("protocol %q: extension and shortening must be non-negative", c.Name)
	}
	if c.LoadingDoses < 0 {
		return fmt.Errorf("protocol %q: loading_doses must be non-negative, got %d", c.Name, c.LoadingDoses)
	}
	if c.LoadingDoses > 0 && c.LoadingIntervalDays <= 0 {
		return fmt.Errorf("protocol %q: loading_interval_days must be positive when loading doses are configured", c.Name)
	}
	return nil
}

// TreatAndExtend is the loading → maintenance state machine. In
// maintenance the interval grows by ExtensionDays while the disease is
// quiet and shrinks by ShorteningDays when fluid is seen.
type TreatAndExtend struct {
	cfg Config
}

// NewTreatAndExtend validates cfg.
func NewTreatAndExtend(cfg Config) (*TreatAndExtend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "treat_and_extend"
	}
	return &TreatAndExtend{cfg: cfg}, nil
}

// NewStandard is NewTreatAndExtend with the four interval parameters and
// the default three-dose monthly loading phase.
func NewStandard(minDays, maxDays, extensionDays, shorteningDays int) (*TreatAndExtend, error) {
	cfg := DefaultConfig()
	cfg.Name = "standard"
	cfg.MinIntervalDays = minDays
	cfg.MaxIntervalDays = maxDays
	cfg.ExtensionDays = extensionDays
	cfg.ShorteningDays = shorteningDays
	return NewTreatAndExtend(cfg)
}

func (t *TreatAndExtend) Name() string { return t.cfg.Name }

func (t *TreatAndExtend) Drug() string { return t.cfg.Drug }

func (t *TreatAndExtend) Config() Config { return t.cfg }

func (t *TreatAndExtend) Bounds() (int, int) { return t.cfg.MinIntervalDays, t.cfg.MaxIntervalDays }

func (t *TreatAndExtend) RestartIntervalDays() int { return t.cfg.MinIntervalDays }

func (t *TreatAndExtend) inLoading(p *patient.Patient) bool {
	return p.Phase == patient.PhaseLoading && p.InjectionCount() < t.cfg.LoadingDoses
}

func (t *TreatAndExtend) ShouldTreat(p *patient.Patient, _ time.Time) bool {
	if p.IsDiscontinued() {
		return false
	}
	if t.inLoading(p) {
		return true
	}
	return needsTreatment(p.CurrentState())
}

func (t *TreatAndExtend) NextVisit(p *patient.Patient, date time.Time, _ bool) Decision {
	if t.inLoading(p) {
		interval := t.clamp(t.cfg.LoadingIntervalDays)
		return Decision{Date: date.AddDate(0, 0, interval), IntervalDays: interval, Phase: patient.PhaseLoading}
	}

	current := p.IntervalDays
	if p.Phase == patient.PhaseLoading || current <= 0 {
		current = t.cfg.LoadingIntervalDays
		if current <= 0 {
			current = t.cfg.MinIntervalDays
		}
	}
	if p.CurrentState().HasFluid() {
		current -= t.cfg.ShorteningDays
	} else {
		current += t.cfg.ExtensionDays
	}
	interval := t.clamp(current)
	return Decision{Date: date.AddDate(0, 0, interval), IntervalDays: interval, Phase: patient.PhaseMaintenance}
}

// NextVisitDate is NextVisit without the bookkeeping fields.
func (t *TreatAndExtend) NextVisitDate(p *patient.Patient, date time.Time, treated bool) time.Time {
	return t.NextVisit(p, date, treated).Date
}

func (t *TreatAndExtend) clamp(days int) int {
	return clampInterval(days, t.cfg.MinIntervalDays, t.cfg.MaxIntervalDays)
}

func clampInterval(days, minDays, maxDays int) int {
	if days < minDays {
		return minDays
	}
	if days > maxDays {
		return maxDays
	}
	return days
}

// needsTreatment treats an unobserved (NAIVE) lesion as active.
func needsTreatment(s disease.State) bool {
	return s == disease.Naive || s.HasFluid()
}

// FixedInterval injects at every visit and sees the patient at a constant
// interval. Used to isolate visit frequency from every other protocol effect.
type FixedInterval struct {
	name     string
	drug     string
	interval int
}

// NewFixedInterval returns a fixed-cadence protocol.
func NewFixedInterval(intervalDays int, drug string) (*FixedInterval, error) {
	if intervalDays <= 0 {
		return nil, fmt.Errorf("fixed protocol: interval must be positive, got %d", intervalDays)
	}
	return &FixedInterval{name: fmt.Sprintf("fixed_%dd", intervalDays), drug: drug, interval: intervalDays}, nil
}

func (f *FixedInterval) Name() string { return f.name }

func (f *FixedInterval) Drug() string { return f.drug }

func (f *FixedInterval) Bounds() (int, int) { return f.interval, f.interval }

func (f *FixedInterval) RestartIntervalDays() int { return f.interval }

func (f *FixedInterval) ShouldTreat(p *patient.Patient, _ time.Time) bool {
	return !p.IsDiscontinued()
}

func (f *FixedInterval) NextVisit(_ *patient.Patient, date time.Time, _ bool) Decision {
	return Decision{Date: date.AddDate(0, 0, f.interval), IntervalDays: f.interval, Phase: patient.PhaseMaintenance}
}
