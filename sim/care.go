package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amd-sim/amd-sim/sim/baseline"
	"github.com/amd-sim/amd-sim/sim/discontinuation"
	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/heterogeneity"
	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/protocol"
	"github.com/amd-sim/amd-sim/sim/trace"
	"github.com/amd-sim/amd-sim/sim/vision"
)

// noEvent marks "nothing further to schedule".
const noEvent = -1

// care holds the decision components and per-run state shared by both
// engines. The engines differ only in how they pick the next enrollment,
// progression step or visit; what happens at each is defined here.
type care struct {
	cfg     RunConfig
	start   time.Time
	horizon int

	proto    protocol.Protocol
	disease  *disease.Model
	baseline baseline.Distribution
	vision   vision.Updater
	measure  vision.Measurement
	disc     *discontinuation.Manager // nil when discontinuation is off
	het      *heterogeneity.Manager   // nil when heterogeneity is off
	trace    *trace.SimulationTrace

	arrivalRNG  *rand.Rand
	baselineRNG *rand.Rand
	visionRNG   *rand.Rand
	measureRNG  *rand.Rand

	patients     []*patient.Patient // by ordinal
	lastProgress []int              // by ordinal, day of the last progression step

	minInterval, maxInterval int // range of scheduled protocol intervals
}

// newCare validates cfg and builds every component for one run.
func newCare(cfg RunConfig) (*care, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	rng := NewPartitionedRNG(cfg.Seed)

	dcfg := cfg.Disease
	if cfg.Progression.Mode == ProgressionTimeBased && dcfg.CalibrationDays > 0 && dcfg.StepDays == 0 {
		dcfg.StepDays = cfg.Progression.TickDays
	}
	dm, err := disease.NewModel(dcfg, 0)
	if err != nil {
		return nil, err
	}
	dist, err := baseline.New(cfg.Baseline)
	if err != nil {
		return nil, err
	}

	c := &care{
		cfg:         cfg,
		start:       cfg.StartDate,
		horizon:     cfg.HorizonDays(),
		proto:       cfg.Protocol,
		disease:     dm.WithRand(rng.ForSubsystem(SubsystemDisease)),
		baseline:    dist,
		vision:      cfg.Vision,
		measure:     vision.Measurement{NoiseSD: cfg.MeasurementNoiseSD},
		arrivalRNG:  rng.ForSubsystem(SubsystemArrivals),
		baselineRNG: rng.ForSubsystem(SubsystemBaseline),
		visionRNG:   rng.ForSubsystem(SubsystemVision),
		measureRNG:  rng.ForSubsystem(SubsystemMeasurement),
		minInterval: math.MaxInt,
	}
	if cfg.Discontinuation != nil {
		_, maxDays := cfg.Protocol.Bounds()
		c.disc, err = discontinuation.NewManager(*cfg.Discontinuation,
			discontinuation.Options{MaxIntervalDays: maxDays},
			rng.ForSubsystem(SubsystemDiscontinuation))
		if err != nil {
			return nil, err
		}
	}
	if cfg.Heterogeneity != nil {
		c.het, err = heterogeneity.NewManager(*cfg.Heterogeneity, heterogeneity.Streams{
			Trajectory:   rng.ForSubsystem(SubsystemHeterogeneityTrajectory),
			Params:       rng.ForSubsystem(SubsystemHeterogeneityParams),
			Catastrophic: rng.ForSubsystem(SubsystemHeterogeneityCatastrophic),
		})
		if err != nil {
			return nil, err
		}
		c.vision = heterogeneity.NewVisionUpdater(c.vision)
	}
	if cfg.TraceLevel == trace.TraceLevelDecisions {
		c.trace = trace.NewSimulationTrace(trace.TraceConfig{Level: cfg.TraceLevel})
	}
	return c, nil
}

func (c *care) date(day int) time.Time { return c.start.AddDate(0, 0, day) }

func (c *care) dayOf(t time.Time) int {
	return int(math.Round(t.Sub(c.start).Hours() / 24))
}

// within drops days at or beyond the horizon.
func (c *care) within(day int) int {
	if day < 0 || day >= c.horizon {
		return noEvent
	}
	return day
}

func (c *care) arrivals() []int {
	return generateArrivals(c.cfg.Population, c.horizon, c.arrivalRNG)
}

// enroll creates the patient with the given ordinal and returns its first
// visit and first progression days.
func (c *care) enroll(ordinal, day int) (p *patient.Patient, firstVisit, firstTick int) {
	bv := c.baseline.Sample(c.baselineRNG)
	p = patient.New(fmt.Sprintf("P%04d", ordinal+1), ordinal, bv, c.date(day))
	if c.het != nil {
		c.het.Assign(p)
	}
	c.patients = append(c.patients, p)
	c.lastProgress = append(c.lastProgress, day)
	logrus.Debugf("[day %05d] enrolled %s baseline=%d", day, p.ID, bv)

	firstTick = noEvent
	if c.cfg.Progression.Mode == ProgressionTimeBased {
		firstTick = c.within(day + c.cfg.Progression.TickDays)
	}
	return p, c.within(day), firstTick
}

// tick advances one fixed-cadence progression step and returns the day of
// the next one.
func (c *care) tick(p *patient.Patient, day int) int {
	if p.IsDeceased() {
		return noEvent
	}
	elapsed := c.cfg.Progression.TickDays
	c.progress(p, day, elapsed, elapsed)
	return c.within(day + elapsed)
}

// underTreatment reports whether an injection is still acting at date.
func (c *care) underTreatment(p *patient.Patient, date time.Time) bool {
	if p.IsDiscontinued() {
		return false
	}
	days, ok := p.DaysSinceLastInjectionAt(date)
	return ok && days <= c.cfg.Progression.TreatmentEffectDays
}

// progress moves the disease and underlying vision over elapsedDays.
// visionDays is the span the vision change is scaled to; 0 applies the
// unscaled per-reference-interval change.
func (c *care) progress(p *patient.Patient, day, elapsedDays, visionDays int) {
	date := c.date(day)
	from := p.CurrentState()
	treated := c.underTreatment(p, date)

	to := from
	governed := false
	if from == disease.Stable && c.disc != nil {
		var recurred bool
		recurred, governed = c.disc.EvaluateRecurrence(p, date, elapsedDays)
		if recurred {
			to = disease.Active
			logrus.Debugf("[day %05d] %s: disease recurred after discontinuation", day, p.ID)
		}
	}
	if !governed {
		to = c.disease.Transition(from, treated)
	}

	delta := c.vision.Delta(c.visionRNG, p, from, to, treated, visionDays)
	p.AdvanceDisease(to, delta)
	logrus.Tracef("[day %05d] %s: %s -> %s treated=%v vision=%.1f", day, p.ID, from, to, treated, p.CurrentVision())

	if c.het != nil {
		if lost, ok := c.het.Catastrophic(p, elapsedDays); ok && c.trace.Enabled() {
			c.trace.RecordCatastrophic(trace.CatastrophicRecord{
				PatientID:       p.ID,
				Day:             day,
				TrajectoryClass: p.Characteristics.TrajectoryClass,
				Loss:            lost,
			})
		}
	}
	c.lastProgress[p.Ordinal] = day
}

// visit runs one clinical visit and returns the day of the next one.
func (c *care) visit(p *patient.Patient, day int) (int, error) {
	if p.IsDeceased() {
		return noEvent, nil
	}
	date := c.date(day)
	if c.cfg.Progression.Mode == ProgressionPerVisit {
		c.progress(p, day, day-c.lastProgress[p.Ordinal], 0)
	}
	measured := c.measure.Measure(c.measureRNG, p.CurrentVision())

	retreated := false
	if p.IsDiscontinued() {
		ok, reason := false, ""
		if c.disc != nil {
			ok, reason = c.disc.EvaluateRetreatment(p, p.CurrentState().HasFluid(), date)
		}
		if !ok {
			v := patient.Visit{Date: date, State: p.CurrentState(), Vision: measured}
			if err := c.record(p, v, day, true, false); err != nil {
				return noEvent, err
			}
			return c.nextMonitoring(p, date), nil
		}
		if err := c.retreat(p, day, reason); err != nil {
			return noEvent, err
		}
		retreated = true
	}

	treat := retreated || c.proto.ShouldTreat(p, date)
	v := patient.Visit{Date: date, State: p.CurrentState(), TreatmentGiven: treat, Vision: measured}
	if err := c.record(p, v, day, false, retreated); err != nil {
		return noEvent, err
	}

	next := c.proto.NextVisit(p, date, treat)
	p.Phase = next.Phase
	p.IntervalDays = next.IntervalDays
	c.observeInterval(next.IntervalDays)

	if c.disc != nil {
		d := c.disc.Evaluate(p, date, float64(p.IntervalDays)/7, p.CurrentState() == disease.Stable)
		if d.Discontinue {
			return c.discontinue(p, day, d), nil
		}
	}
	return c.within(c.dayOf(next.Date)), nil
}

func (c *care) retreat(p *patient.Patient, day int, reason string) error {
	disc := p.Discontinuation()
	loss := disc.Vision - p.CurrentVision()
	if err := p.RestartTreatment(c.date(day)); err != nil {
		return fmt.Errorf("day %d: %w", day, err)
	}
	p.Phase = patient.PhaseMaintenance
	p.IntervalDays = c.proto.RestartIntervalDays()
	logrus.Debugf("[day %05d] %s: retreatment after %s (%s)", day, p.ID, disc.Type, reason)
	if c.trace.Enabled() {
		c.trace.RecordRetreatment(trace.RetreatmentRecord{
			PatientID:  p.ID,
			Day:        day,
			Category:   disc.Type,
			Reason:     reason,
			VisionLoss: loss,
		})
	}
	return nil
}

func (c *care) discontinue(p *patient.Patient, day int, d discontinuation.Decision) int {
	date := c.date(day)
	p.Discontinue(date, string(d.Category), d.Reason)
	if c.trace.Enabled() {
		c.trace.RecordDiscontinuation(trace.DiscontinuationRecord{
			PatientID:     p.ID,
			Day:           day,
			Category:      string(d.Category),
			Reason:        d.Reason,
			Vision:        p.CurrentVision(),
			IntervalWeeks: float64(p.IntervalDays) / 7,
			VisionPenalty: d.VisionPenalty,
		})
	}
	if d.Category == discontinuation.Mortality {
		p.MarkDeceased()
		return noEvent
	}
	p.SetMonitoringSchedule(d.MonitoringDates)
	return c.nextMonitoring(p, date)
}

func (c *care) nextMonitoring(p *patient.Patient, after time.Time) int {
	next, ok := p.NextMonitoringVisit(after)
	if !ok {
		return noEvent
	}
	return c.within(c.dayOf(next))
}

// record applies the enhancer chain and appends the visit.
func (c *care) record(p *patient.Patient, v patient.Visit, day int, monitoring, retreated bool) error {
	if len(c.cfg.Enhancers) > 0 {
		ctx := patient.VisitContext{
			Day:          day,
			Phase:        p.Phase,
			IntervalDays: p.IntervalDays,
			Monitoring:   monitoring,
			Retreated:    retreated,
			Drug:         c.proto.Drug(),
		}
		if d := p.Discontinuation(); monitoring && d != nil {
			ctx.Discontinued = d.Type
		}
		v = patient.ApplyEnhancers(v, ctx, p, c.cfg.Enhancers)
	}
	if err := p.RecordVisit(v); err != nil {
		return fmt.Errorf("day %d: %w", day, err)
	}
	return nil
}

func (c *care) observeInterval(days int) {
	if days < c.minInterval {
		c.minInterval = days
	}
	if days > c.maxInterval {
		c.maxInterval = days
	}
}
