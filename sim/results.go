package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/trace"
)

// runNamespace scopes run IDs derived from configuration fingerprints.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://amd-sim/runs"))

// SimulationResults is the aggregate output of one run.
type SimulationResults struct {
	RunID  string // deterministic in (engine, seed, configuration)
	Engine string

	TotalInjections  int
	PatientHistories map[string]*patient.Patient

	FinalVisionMean float64 // underlying vision over all enrolled patients
	FinalVisionStd  float64

	DiscontinuationRate   float64 // fraction of patients discontinued at least once
	DiscontinuationCounts map[string]int
	RetreatmentCount      int

	StateDistribution map[disease.State]float64 // fraction of patients per state at run end

	CatastrophicEvents int
	MinIntervalDays    int // range of scheduled protocol intervals; 0 when none
	MaxIntervalDays    int

	StartDate    time.Time
	DurationDays int
	Trace        *trace.SimulationTrace // nil unless TraceLevel is "decisions"
}

// results aggregates the run. Empty cohorts yield zero values, never NaN.
func (c *care) results(engine string) *SimulationResults {
	r := &SimulationResults{
		RunID:                 runID(engine, c.cfg),
		Engine:                engine,
		PatientHistories:      make(map[string]*patient.Patient, len(c.patients)),
		DiscontinuationCounts: make(map[string]int),
		StateDistribution:     make(map[disease.State]float64, len(disease.AllStates)),
		StartDate:             c.start,
		DurationDays:          c.horizon,
		Trace:                 c.trace,
	}
	for _, s := range disease.AllStates {
		r.StateDistribution[s] = 0
	}

	n := len(c.patients)
	visions := make([]float64, 0, n)
	discontinued := 0
	for _, p := range c.patients {
		r.PatientHistories[p.ID] = p
		r.TotalInjections += p.InjectionCount()
		r.RetreatmentCount += p.RetreatmentCount()
		visions = append(visions, p.CurrentVision())
		episodes := p.DiscontinuationEpisodes()
		if len(episodes) > 0 {
			discontinued++
		}
		for _, e := range episodes {
			r.DiscontinuationCounts[e.Type]++
		}
		r.StateDistribution[p.CurrentState()]++
	}
	if n > 0 {
		r.DiscontinuationRate = float64(discontinued) / float64(n)
		for s := range r.StateDistribution {
			r.StateDistribution[s] /= float64(n)
		}
	}
	switch {
	case n >= 2:
		r.FinalVisionMean, r.FinalVisionStd = stat.MeanStdDev(visions, nil)
	case n == 1:
		r.FinalVisionMean = visions[0]
	}
	if c.het != nil {
		r.CatastrophicEvents = c.het.Stats().CatastrophicEvents
	}
	if c.maxInterval > 0 {
		r.MinIntervalDays, r.MaxIntervalDays = c.minInterval, c.maxInterval
	}
	return r
}

func runID(engine string, cfg RunConfig) string {
	minDays, maxDays := cfg.Protocol.Bounds()
	fingerprint := fmt.Sprintf("%s|%s|%d|%g|%s|%s|%d|%d|%d|%g|%s",
		engine, cfg.Name, cfg.Seed, cfg.DurationYears, cfg.StartDate.Format("2006-01-02"),
		cfg.Protocol.Name(), minDays, maxDays, cfg.Progression.TickDays,
		cfg.MeasurementNoiseSD, cfg.Progression.Mode)
	if cfg.Population.NPatients != nil {
		fingerprint += fmt.Sprintf("|n=%d", *cfg.Population.NPatients)
	}
	if cfg.Population.PatientArrivalRate != nil {
		fingerprint += fmt.Sprintf("|rate=%g", *cfg.Population.PatientArrivalRate)
	}
	if cfg.Discontinuation != nil {
		fingerprint += "|disc=" + cfg.Discontinuation.Name + "@" + cfg.Discontinuation.Version
	}
	if cfg.Heterogeneity != nil {
		fingerprint += "|het"
	}
	return uuid.NewSHA1(runNamespace, []byte(fingerprint)).String()
}

// VisionTimeline samples the cohort every stepDays from the start date to
// the horizon. Each point is the mean of every enrolled patient's most
// recent recorded vision; days before the first visit are skipped.
func (r *SimulationResults) VisionTimeline(stepDays int) (days, mean []float64) {
	if stepDays <= 0 {
		return nil, nil
	}
	histories := make([][]patient.Visit, 0, len(r.PatientHistories))
	for _, id := range r.PatientIDs() {
		histories = append(histories, r.PatientHistories[id].VisitHistory())
	}
	for d := 0; d <= r.DurationDays; d += stepDays {
		date := r.StartDate.AddDate(0, 0, d)
		sum, n := 0.0, 0
		for _, visits := range histories {
			i := sort.Search(len(visits), func(i int) bool { return visits[i].Date.After(date) })
			if i == 0 {
				continue
			}
			sum += visits[i-1].Vision
			n++
		}
		if n == 0 {
			continue
		}
		days = append(days, float64(d))
		mean = append(mean, sum/float64(n))
	}
	return days, mean
}

// PatientIDs returns history keys in enrollment order.
func (r *SimulationResults) PatientIDs() []string {
	ids := make([]string, 0, len(r.PatientHistories))
	for id := range r.PatientHistories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.PatientHistories[ids[i]].Ordinal < r.PatientHistories[ids[j]].Ordinal
	})
	return ids
}

// Print displays the aggregate results.
func (r *SimulationResults) Print() {
	fmt.Println("=== Simulation Results ===")
	fmt.Printf("Run ID               : %s\n", r.RunID)
	fmt.Printf("Engine               : %s\n", r.Engine)
	fmt.Printf("Duration             : %d days\n", r.DurationDays)
	fmt.Printf("Patients             : %d\n", len(r.PatientHistories))
	fmt.Printf("Total Injections     : %d\n", r.TotalInjections)
	if n := len(r.PatientHistories); n > 0 {
		fmt.Printf("Injections / Patient : %.2f\n", float64(r.TotalInjections)/float64(n))
	}
	fmt.Printf("Final Vision         : %.2f ± %.2f letters\n", r.FinalVisionMean, r.FinalVisionStd)
	fmt.Printf("Discontinuation Rate : %.1f%%\n", r.DiscontinuationRate*100)
	if len(r.DiscontinuationCounts) > 0 {
		types := make([]string, 0, len(r.DiscontinuationCounts))
		for t := range r.DiscontinuationCounts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("  %-24s: %d\n", t, r.DiscontinuationCounts[t])
		}
	}
	fmt.Printf("Retreatments         : %d\n", r.RetreatmentCount)
	fmt.Println("Final State Distribution:")
	for _, s := range disease.AllStates {
		fmt.Printf("  %-24s: %.1f%%\n", s, r.StateDistribution[s]*100)
	}
	if r.MaxIntervalDays > 0 {
		fmt.Printf("Interval Range       : %d-%d days\n", r.MinIntervalDays, r.MaxIntervalDays)
	}
	if r.CatastrophicEvents > 0 {
		fmt.Printf("Catastrophic Events  : %d\n", r.CatastrophicEvents)
	}
	if r.Trace != nil {
		s := trace.Summarize(r.Trace)
		fmt.Printf("Traced Decisions     : %d discontinuations, %d retreatments, %d catastrophic\n",
			s.TotalDiscontinuations, s.TotalRetreatments, s.CatastrophicEvents)
	}
}
