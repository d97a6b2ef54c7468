package discontinuation

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/rates"
)

// DefaultSystemVisitsPerYear converts the annual system discontinuation
// probability to a per-visit one when the patient's own interval is not
// used.
const DefaultSystemVisitsPerYear = 6.5

// Decision is the outcome of one discontinuation evaluation.
type Decision struct {
	Discontinue     bool
	Category        Category
	Reason          string
	VisionPenalty   float64 // letters removed from underlying vision (premature only)
	MonitoringDates []time.Time
}

// Input is what a criterion sees at a visit.
type Input struct {
	Patient       *patient.Patient
	Date          time.Time
	IntervalWeeks float64
	IsStable      bool
}

// criterion returns whether it fires and, if so, a reason.
type criterion struct {
	category Category
	fires    func(in Input) (bool, string)
}

// Stats counts evaluations and outcomes over one run.
type Stats struct {
	Evaluations            int
	Discontinuations       map[Category]int
	RetreatmentEvaluations int
	Retreatments           int
	RetreatmentsByCategory map[Category]int
	PrematureVisionPenalty float64 // letters, summed
}

// Options carries protocol facts the criteria depend on.
type Options struct {
	// MaxIntervalDays marks "at max interval" for stable_max_interval.
	MaxIntervalDays int
}

// Manager evaluates the criteria ladder and retreatment at visits. It owns
// a dedicated random stream and is not safe for concurrent use.
type Manager struct {
	profile    Profile
	opts       Options
	rng        *rand.Rand
	ladder     []criterion
	recurrence map[Category]*RecurrenceCurve
	stats      Stats
	active     map[string]bool // currently discontinued patient IDs

	poorThreshold  float64
	poorEnabled    bool
	stableAtMaxMin float64 // interval weeks counted as "at max"
}

// NewManager validates profile once and compiles the ladder.
func NewManager(profile Profile, opts Options, rng *rand.Rand) (*Manager, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("discontinuation manager requires a random stream")
	}
	m := &Manager{
		profile:    profile,
		opts:       opts,
		rng:        rng,
		recurrence: make(map[Category]*RecurrenceCurve, len(profile.RecurrenceRates)),
		active:     make(map[string]bool),
		stats: Stats{
			Discontinuations:       make(map[Category]int),
			RetreatmentsByCategory: make(map[Category]int),
		},
	}
	for c, points := range profile.RecurrenceRates {
		curve, err := NewRecurrenceCurve(points)
		if err != nil {
			return nil, err
		}
		m.recurrence[c] = curve
	}
	if opts.MaxIntervalDays > 0 {
		m.stableAtMaxMin = float64(opts.MaxIntervalDays) / 7
	} else {
		m.stableAtMaxMin = math.Inf(1)
	}
	if cfg := profile.Categories[PoorResponse]; cfg.Enabled {
		m.poorEnabled = true
		m.poorThreshold = cfg.Params["vision_threshold"]
	}

	order := profile.Priority
	if len(order) == 0 {
		order = DefaultPriority
	}
	for _, c := range order {
		cfg := profile.Categories[c]
		if !cfg.Enabled {
			continue
		}
		m.ladder = append(m.ladder, criterion{category: c, fires: m.compile(c, cfg.Params)})
	}
	return m, nil
}

// Profile returns the validated profile.
func (m *Manager) Profile() Profile { return m.profile }

func (m *Manager) compile(c Category, params map[string]float64) func(Input) (bool, string) {
	switch c {
	case Mortality:
		annual := params["annual_rate"]
		return func(in Input) (bool, string) {
			p := rates.AnnualToPerInterval(annual, in.IntervalWeeks*7)
			if m.rng.Float64() < p {
				return true, fmt.Sprintf("death (annual rate %.3f)", annual)
			}
			return false, ""
		}
	case PoorResponse:
		needed := int(params["consecutive_visits"])
		return func(in Input) (bool, string) {
			if n := in.Patient.ConsecutivePoorVisionVisits(); n >= needed && n > 0 {
				return true, fmt.Sprintf("vision below %.0f letters for %d consecutive visits", m.poorThreshold, n)
			}
			return false, ""
		}
	case SystemDiscontinuation:
		annual := params["annual_probability"]
		vpy := params["visits_per_year"]
		if vpy <= 0 {
			vpy = DefaultSystemVisitsPerYear
		}
		usePatient := params["use_patient_interval"] > 0
		return func(in Input) (bool, string) {
			visits := vpy
			if usePatient {
				visits = rates.VisitsPerYear(in.IntervalWeeks * 7)
			}
			if m.rng.Float64() < rates.AnnualToPerVisit(annual, visits) {
				return true, "administrative or system-level discontinuation"
			}
			return false, ""
		}
	case ReauthorizationFailure:
		threshold := params["threshold_weeks"]
		prob := params["probability"]
		return func(in Input) (bool, string) {
			weeks := in.Patient.WeeksOnTreatmentAt(in.Date)
			if weeks <= threshold {
				return false, ""
			}
			if m.rng.Float64() < prob {
				return true, fmt.Sprintf("funding reauthorization refused after %.0f weeks", weeks)
			}
			return false, ""
		}
	case Premature:
		minWeeks := params["min_interval_weeks"]
		minVision := params["min_vision"]
		target := params["target_rate"]
		return func(in Input) (bool, string) {
			if in.IntervalWeeks < minWeeks || in.Patient.MeasuredVision() < minVision {
				return false, ""
			}
			p := rates.AnnualToPerVisit(target, rates.VisitsPerYear(in.IntervalWeeks*7))
			if m.rng.Float64() < p {
				return true, fmt.Sprintf("stopped early at %.0f week interval", in.IntervalWeeks)
			}
			return false, ""
		}
	case StableMaxInterval:
		needed := int(params["consecutive_visits"])
		prob := params["probability"]
		return func(in Input) (bool, string) {
			n := in.Patient.ConsecutiveStableVisits()
			if n < needed || n == 0 {
				return false, ""
			}
			if m.rng.Float64() < prob {
				return true, fmt.Sprintf("stable for %d visits at maximum interval", n)
			}
			return false, ""
		}
	}
	return func(Input) (bool, string) { return false, "" }
}

// Evaluate updates the patient's consecutive-visit counters and walks the
// ladder; the first criterion to fire decides. Patients already
// discontinued are not re-evaluated.
func (m *Manager) Evaluate(p *patient.Patient, date time.Time, intervalWeeks float64, isStable bool) Decision {
	if p.IsDiscontinued() || p.IsDeceased() || m.active[p.ID] {
		return Decision{}
	}
	m.stats.Evaluations++

	if m.poorEnabled {
		p.ObservePoorVision(p.MeasuredVision() < m.poorThreshold)
	}
	p.ObserveStableAtMax(isStable && intervalWeeks >= m.stableAtMaxMin)

	in := Input{Patient: p, Date: date, IntervalWeeks: intervalWeeks, IsStable: isStable}
	for _, c := range m.ladder {
		ok, reason := c.fires(in)
		if !ok {
			continue
		}
		return m.fire(p, date, c.category, reason)
	}
	return Decision{}
}

func (m *Manager) fire(p *patient.Patient, date time.Time, c Category, reason string) Decision {
	m.stats.Discontinuations[c]++
	m.active[p.ID] = true
	d := Decision{Discontinue: true, Category: c, Reason: reason}

	if c == Premature {
		params := m.profile.Categories[Premature].Params
		loss := params["vision_loss_mean"] + m.rng.NormFloat64()*params["vision_loss_std"]
		loss = math.Max(0, loss)
		before := p.CurrentVision()
		after := p.ApplyVisionChange(-loss)
		d.VisionPenalty = before - after
		m.stats.PrematureVisionPenalty += d.VisionPenalty
	}
	if !c.Terminal() {
		for _, w := range m.profile.monitoringWeeks(c) {
			d.MonitoringDates = append(d.MonitoringDates, date.AddDate(0, 0, w*7))
		}
	}
	logrus.Debugf("patient %s discontinued on %s: %s (%s)", p.ID, date.Format(time.DateOnly), c, reason)
	return d
}

// EvaluateRetreatment decides, at a monitoring visit on date, whether a
// discontinued patient resumes treatment. Terminal discontinuations never
// resume.
func (m *Manager) EvaluateRetreatment(p *patient.Patient, hasFluid bool, date time.Time) (bool, string) {
	disc := p.Discontinuation()
	if !p.IsDiscontinued() || disc == nil || p.IsDeceased() {
		return false, ""
	}
	c := Category(disc.Type)
	if c.Terminal() {
		return false, ""
	}
	m.stats.RetreatmentEvaluations++

	r := m.profile.Retreatment
	if r.RequireFluid && !hasFluid {
		return false, ""
	}
	loss := disc.Vision - p.CurrentVision()
	if loss < r.MinVisionLoss {
		return false, ""
	}
	if m.rng.Float64() >= r.DetectionProbability {
		return false, ""
	}
	if m.rng.Float64() >= r.Probability {
		return false, ""
	}
	m.stats.Retreatments++
	m.stats.RetreatmentsByCategory[c]++
	delete(m.active, p.ID)
	weeks := date.Sub(disc.Date).Hours() / (24 * 7)
	logrus.Debugf("patient %s retreated on %s, %.0f weeks after %s", p.ID, date.Format(time.DateOnly), weeks, c)
	return true, fmt.Sprintf("fluid recurrence %.0f weeks after %s with %.1f letter loss", weeks, c, loss)
}

// RecurrenceProbability is the chance that a patient discontinued under c
// has disease recur between fromDays and toDays after discontinuation.
// Categories without a curve never recur.
func (m *Manager) RecurrenceProbability(c Category, fromDays, toDays float64) float64 {
	curve, ok := m.recurrence[c]
	if !ok || toDays <= fromDays {
		return 0
	}
	return curve.Probability(fromDays/rates.DaysPerYear, toDays/rates.DaysPerYear)
}

// EvaluateRecurrence reports whether a discontinued patient's disease
// course is governed by a recurrence curve (non-terminal category with a
// configured curve) and, if so, whether disease recurs over the
// elapsedDays ending at date.
func (m *Manager) EvaluateRecurrence(p *patient.Patient, date time.Time, elapsedDays int) (recurred, governed bool) {
	disc := p.Discontinuation()
	if !p.IsDiscontinued() || disc == nil {
		return false, false
	}
	c := Category(disc.Type)
	if _, ok := m.recurrence[c]; !ok || c.Terminal() {
		return false, false
	}
	since := date.Sub(disc.Date).Hours() / 24
	prob := m.RecurrenceProbability(c, math.Max(0, since-float64(elapsedDays)), since)
	if prob <= 0 {
		return false, true
	}
	return m.rng.Float64() < prob, true
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	s := m.stats
	s.Discontinuations = make(map[Category]int, len(m.stats.Discontinuations))
	for k, v := range m.stats.Discontinuations {
		s.Discontinuations[k] = v
	}
	s.RetreatmentsByCategory = make(map[Category]int, len(m.stats.RetreatmentsByCategory))
	for k, v := range m.stats.RetreatmentsByCategory {
		s.RetreatmentsByCategory[k] = v
	}
	return s
}
