package heterogeneity

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/rates"
)

// Streams are the three independent random streams the overlay consumes.
// Keeping them apart means assigning classes never shifts parameter draws
// or catastrophic events.
type Streams struct {
	Trajectory   *rand.Rand
	Params       *rand.Rand
	Catastrophic *rand.Rand
}

type pools struct {
	response    []float64
	progression []float64
}

// Stats counts assignments and catastrophic events over one run.
type Stats struct {
	ClassCounts        map[string]int
	CatastrophicEvents int
	CatastrophicLoss   float64 // letters, summed
}

// Manager assigns characteristics and draws catastrophic events.
type Manager struct {
	cfg     Config
	streams Streams
	cumProp []float64
	pools   []pools
	stats   Stats
}

// NewManager validates cfg and pre-samples every class's parameter pools
// from the params stream.
func NewManager(cfg Config, streams Streams) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("heterogeneity: %w", err)
	}
	if streams.Trajectory == nil || streams.Params == nil || streams.Catastrophic == nil {
		return nil, fmt.Errorf("heterogeneity: all three random streams are required")
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	m := &Manager{
		cfg:     cfg,
		streams: streams,
		stats:   Stats{ClassCounts: make(map[string]int, len(cfg.Classes))},
	}

	props := make([]float64, len(cfg.Classes))
	for i, cl := range cfg.Classes {
		props[i] = cl.Proportion
	}
	m.cumProp = make([]float64, len(props))
	floats.CumSum(m.cumProp, props)

	m.pools = make([]pools, len(cfg.Classes))
	for i, cl := range cfg.Classes {
		m.pools[i] = pools{
			response:    samplePool(streams.Params, cl.ResponseMultiplier, cfg.PoolSize),
			progression: samplePool(streams.Params, cl.ProgressionMultiplier, cfg.PoolSize),
		}
	}
	logrus.Debugf("heterogeneity: %d classes, %d pre-sampled values per parameter", len(cfg.Classes), cfg.PoolSize)
	return m, nil
}

func samplePool(rng *rand.Rand, d ParamDist, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = sampleTruncated(rng, d)
	}
	return out
}

// sampleTruncated draws from the normal restricted to [Min, Max] by
// inverting the CDF over the retained mass.
func sampleTruncated(rng *rand.Rand, d ParamDist) float64 {
	u := rng.Float64()
	if d.Std == 0 {
		return d.Mean
	}
	n := distuv.Normal{Mu: d.Mean, Sigma: d.Std}
	lo, hi := n.CDF(d.Min), n.CDF(d.Max)
	if hi-lo < 1e-12 {
		return d.Mean
	}
	x := n.Quantile(lo + u*(hi-lo))
	return math.Min(d.Max, math.Max(d.Min, x))
}

// Assign draws a trajectory class from the trajectory stream and picks the
// patient's multipliers from the class pools using the params stream.
func (m *Manager) Assign(p *patient.Patient) *patient.Characteristics {
	u := m.streams.Trajectory.Float64() * m.cumProp[len(m.cumProp)-1]
	idx := sort.SearchFloat64s(m.cumProp, u)
	for idx < len(m.cumProp)-1 && m.cfg.Classes[idx].Proportion == 0 {
		idx++
	}
	if idx >= len(m.cfg.Classes) {
		idx = len(m.cfg.Classes) - 1
	}
	cl := m.cfg.Classes[idx]
	pool := m.pools[idx]

	c := &patient.Characteristics{
		TrajectoryClass:       cl.Name,
		ResponseMultiplier:    pool.response[m.streams.Params.Intn(len(pool.response))],
		ProgressionMultiplier: pool.progression[m.streams.Params.Intn(len(pool.progression))],
		CatastrophicRisk:      cl.CatastrophicRisk,
		CatastrophicLossMean:  m.cfg.Catastrophic.LossMean,
		CatastrophicLossStd:   m.cfg.Catastrophic.LossStd,
	}
	p.Characteristics = c
	m.stats.ClassCounts[cl.Name]++
	return c
}

// Catastrophic draws, from the catastrophic stream, whether the patient
// suffers a sudden vision loss during elapsedDays and applies it. It
// returns the letters lost and whether an event occurred. Patients without
// characteristics never have events and consume no randomness.
func (m *Manager) Catastrophic(p *patient.Patient, elapsedDays int) (float64, bool) {
	c := p.Characteristics
	if c == nil || c.CatastrophicRisk <= 0 || p.IsDeceased() {
		return 0, false
	}
	prob := rates.AnnualToPerInterval(c.CatastrophicRisk, float64(elapsedDays))
	if m.streams.Catastrophic.Float64() >= prob {
		return 0, false
	}
	loss := math.Max(0, c.CatastrophicLossMean+m.streams.Catastrophic.NormFloat64()*c.CatastrophicLossStd)
	before := p.CurrentVision()
	lost := before - p.ApplyVisionChange(-loss)
	m.stats.CatastrophicEvents++
	m.stats.CatastrophicLoss += lost
	logrus.Debugf("patient %s (%s): catastrophic loss of %.1f letters", p.ID, c.TrajectoryClass, lost)
	return lost, true
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	s := m.stats
	s.ClassCounts = make(map[string]int, len(m.stats.ClassCounts))
	for k, v := range m.stats.ClassCounts {
		s.ClassCounts[k] = v
	}
	return s
}
