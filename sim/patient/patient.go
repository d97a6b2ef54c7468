// Package patient holds the mutable record of one simulated individual.
//
// A Patient is owned by the engine that enrolled it. Its lifecycle state
// (visits, discontinuation, retreatment) changes only through the methods
// below, which enforce the treatment invariants.
package patient

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amd-sim/amd-sim/sim/disease"
)

// ETDRS letter bounds applied after every vision change.
const (
	MinVision = 0.0
	MaxVision = 100.0
)

var (
	// ErrTreatmentWhileDiscontinued is returned when a treated visit is
	// recorded for a discontinued patient.
	ErrTreatmentWhileDiscontinued = errors.New("cannot record treatment for a discontinued patient")
	// ErrNotDiscontinued is returned when restarting a patient who is on treatment.
	ErrNotDiscontinued = errors.New("cannot restart treatment for a patient who is not discontinued")
)

// Phase is the protocol phase the patient is in.
type Phase string

const (
	PhaseLoading     Phase = "loading"
	PhaseMaintenance Phase = "maintenance"
	PhaseMonitoring  Phase = "monitoring"
)

// Visit is one immutable entry of the visit history.
type Visit struct {
	Date           time.Time
	State          disease.State
	TreatmentGiven bool
	Vision         float64
	Metadata       map[string]any
}

// Discontinuation describes the current (or most recent) discontinuation episode.
type Discontinuation struct {
	Date   time.Time
	Type   string
	Reason string
	Vision float64 // underlying vision at the moment of discontinuation
}

// Characteristics is the optional per-patient heterogeneity payload.
// A nil payload means the population-average response.
type Characteristics struct {
	TrajectoryClass       string
	ResponseMultiplier    float64 // scales vision gains
	ProgressionMultiplier float64 // scales vision losses
	CatastrophicRisk      float64 // annual probability of a catastrophic vision loss
	CatastrophicLossMean  float64
	CatastrophicLossStd   float64
}

// Patient is a single simulated individual.
type Patient struct {
	ID             string
	Ordinal        int // enrollment order, used for deterministic tie-breaking
	BaselineVision int
	EnrollmentDate time.Time

	// Protocol bookkeeping written by the engine from protocol decisions.
	Phase        Phase
	IntervalDays int

	Characteristics *Characteristics

	currentState    disease.State
	currentVision   float64
	measuredVision  float64
	visits          []Visit
	injectionCount  int
	firstVisitDate  time.Time
	lastInjection   time.Time
	hasInjection    bool
	discontinued    bool
	discontinuation *Discontinuation
	episodes        []Discontinuation
	retreatments    []time.Time
	monitoring      []time.Time
	deceased        bool

	consecutivePoorVision int
	consecutiveStable     int
}

// New creates a treatment-naive patient at enrollment.
func New(id string, ordinal int, baselineVision int, enrolled time.Time) *Patient {
	vision := ClampVision(float64(baselineVision))
	return &Patient{
		ID:             id,
		Ordinal:        ordinal,
		BaselineVision: baselineVision,
		EnrollmentDate: enrolled,
		Phase:          PhaseLoading,
		currentState:   disease.Naive,
		currentVision:  vision,
		measuredVision: vision,
	}
}

// ClampVision bounds v to the ETDRS range.
func ClampVision(v float64) float64 {
	if math.IsNaN(v) {
		return MinVision
	}
	return math.Min(MaxVision, math.Max(MinVision, v))
}

// RecordVisit appends v to the history and updates the current state, the
// last measured vision, the first-visit date and the injection count.
// Treated visits are rejected while the patient is discontinued.
func (p *Patient) RecordVisit(v Visit) error {
	if v.TreatmentGiven && p.discontinued {
		return fmt.Errorf("patient %s on %s: %w", p.ID, v.Date.Format(time.DateOnly), ErrTreatmentWhileDiscontinued)
	}
	v.Vision = ClampVision(v.Vision)
	if v.Metadata != nil {
		md := make(map[string]any, len(v.Metadata))
		for k, val := range v.Metadata {
			md[k] = val
		}
		v.Metadata = md
	}
	p.visits = append(p.visits, v)

	p.currentState = v.State
	p.measuredVision = v.Vision
	if p.firstVisitDate.IsZero() {
		p.firstVisitDate = v.Date
	}
	if v.TreatmentGiven {
		p.injectionCount++
		p.lastInjection = v.Date
		p.hasInjection = true
	}
	return nil
}

// AdvanceDisease moves the underlying disease state and applies a vision
// change, clamping the result. It returns the new underlying vision.
func (p *Patient) AdvanceDisease(state disease.State, visionDelta float64) float64 {
	p.currentState = state
	return p.ApplyVisionChange(visionDelta)
}

// ApplyVisionChange adds delta to the underlying vision and clamps it.
func (p *Patient) ApplyVisionChange(delta float64) float64 {
	p.currentVision = ClampVision(p.currentVision + delta)
	return p.currentVision
}

// Discontinue marks the patient discontinued. A second call while already
// discontinued is ignored so that the first criterion to fire wins; it
// reports whether the call took effect.
func (p *Patient) Discontinue(date time.Time, typ, reason string) bool {
	if p.discontinued {
		logrus.Warnf("patient %s already discontinued (%s); ignoring %s", p.ID, p.discontinuation.Type, typ)
		return false
	}
	d := Discontinuation{Date: date, Type: typ, Reason: reason, Vision: p.currentVision}
	p.discontinued = true
	p.discontinuation = &d
	p.episodes = append(p.episodes, d)
	p.Phase = PhaseMonitoring
	return true
}

// RestartTreatment resumes treatment for a discontinued patient.
func (p *Patient) RestartTreatment(date time.Time) error {
	if !p.discontinued {
		return fmt.Errorf("patient %s: %w", p.ID, ErrNotDiscontinued)
	}
	p.discontinued = false
	p.retreatments = append(p.retreatments, date)
	p.monitoring = nil
	p.consecutivePoorVision = 0
	p.consecutiveStable = 0
	return nil
}

// MarkDeceased removes the patient from further disease progression.
func (p *Patient) MarkDeceased() {
	p.deceased = true
	p.monitoring = nil
}

// SetMonitoringSchedule replaces the pending monitoring visit dates.
func (p *Patient) SetMonitoringSchedule(dates []time.Time) {
	p.monitoring = append([]time.Time(nil), dates...)
}

// NextMonitoringVisit pops the earliest pending monitoring date strictly
// after `after`. Dates at or before `after` are discarded.
func (p *Patient) NextMonitoringVisit(after time.Time) (time.Time, bool) {
	for len(p.monitoring) > 0 {
		next := p.monitoring[0]
		p.monitoring = p.monitoring[1:]
		if next.After(after) {
			return next, true
		}
	}
	return time.Time{}, false
}

// ObservePoorVision updates the consecutive poor-vision counter: it
// increments when poor is true and resets to 0 otherwise. It returns the
// updated count.
func (p *Patient) ObservePoorVision(poor bool) int {
	if poor {
		p.consecutivePoorVision++
	} else {
		p.consecutivePoorVision = 0
	}
	return p.consecutivePoorVision
}

// ObserveStableAtMax updates the consecutive stable-at-max-interval counter.
func (p *Patient) ObserveStableAtMax(stable bool) int {
	if stable {
		p.consecutiveStable++
	} else {
		p.consecutiveStable = 0
	}
	return p.consecutiveStable
}

// DaysSinceLastInjectionAt returns the whole days since the most recent
// treated visit; ok is false when the patient has never been injected.
func (p *Patient) DaysSinceLastInjectionAt(date time.Time) (days int, ok bool) {
	if !p.hasInjection {
		return 0, false
	}
	return int(date.Sub(p.lastInjection).Hours() / 24), true
}

// WeeksSinceLastInjectionAt is DaysSinceLastInjectionAt in fractional weeks.
func (p *Patient) WeeksSinceLastInjectionAt(date time.Time) (weeks float64, ok bool) {
	if !p.hasInjection {
		return 0, false
	}
	return date.Sub(p.lastInjection).Hours() / (24 * 7), true
}

// WeeksOnTreatmentAt returns the time from the first visit to date, less
// every span spent discontinued. An open episode counts up to date.
func (p *Patient) WeeksOnTreatmentAt(date time.Time) float64 {
	if p.firstVisitDate.IsZero() || !date.After(p.firstVisitDate) {
		return 0
	}
	total := date.Sub(p.firstVisitDate)
	for i, e := range p.episodes {
		if !e.Date.Before(date) {
			break
		}
		end := date
		if i < len(p.retreatments) && p.retreatments[i].Before(date) {
			end = p.retreatments[i]
		}
		total -= end.Sub(e.Date)
	}
	return total.Hours() / (24 * 7)
}

func (p *Patient) CurrentState() disease.State { return p.currentState }

// CurrentVision is the underlying (true) vision.
func (p *Patient) CurrentVision() float64 { return p.currentVision }

// MeasuredVision is the vision recorded at the most recent visit.
func (p *Patient) MeasuredVision() float64 { return p.measuredVision }

func (p *Patient) InjectionCount() int { return p.injectionCount }

func (p *Patient) IsDiscontinued() bool { return p.discontinued }

func (p *Patient) IsDeceased() bool { return p.deceased }

// Discontinuation returns the current or most recent episode, or nil.
func (p *Patient) Discontinuation() *Discontinuation {
	if p.discontinuation == nil {
		return nil
	}
	d := *p.discontinuation
	return &d
}

// DiscontinuationEpisodes returns every episode in order.
func (p *Patient) DiscontinuationEpisodes() []Discontinuation {
	return append([]Discontinuation(nil), p.episodes...)
}

func (p *Patient) RetreatmentCount() int { return len(p.retreatments) }

func (p *Patient) RetreatmentDates() []time.Time {
	return append([]time.Time(nil), p.retreatments...)
}

// FirstVisitDate is zero until the first visit is recorded.
func (p *Patient) FirstVisitDate() time.Time { return p.firstVisitDate }

// VisitHistory returns a copy of the visit slice in recording order.
func (p *Patient) VisitHistory() []Visit {
	return append([]Visit(nil), p.visits...)
}

func (p *Patient) VisitCount() int { return len(p.visits) }

func (p *Patient) ConsecutivePoorVisionVisits() int { return p.consecutivePoorVision }

func (p *Patient) ConsecutiveStableVisits() int { return p.consecutiveStable }

// PendingMonitoringVisits returns the monitoring dates not yet attended.
func (p *Patient) PendingMonitoringVisits() []time.Time {
	return append([]time.Time(nil), p.monitoring...)
}
