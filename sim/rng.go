package sim

import (
	"hash/fnv"
	"math/rand"
)

// Subsystem names one independent random stream of a run.
type Subsystem string

const (
	// SubsystemArrivals draws enrollment times. It is seeded with the master
	// seed itself so a cohort's arrival days depend on the seed alone.
	SubsystemArrivals Subsystem = "arrivals"
	// SubsystemBaseline draws baseline vision at enrollment.
	SubsystemBaseline Subsystem = "baseline"
	// SubsystemDisease drives disease-state transitions.
	SubsystemDisease Subsystem = "disease"
	// SubsystemVision drives underlying vision change.
	SubsystemVision Subsystem = "vision"
	// SubsystemMeasurement adds measurement noise at visits.
	SubsystemMeasurement Subsystem = "measurement"
	// SubsystemDiscontinuation feeds discontinuation, retreatment and recurrence draws.
	SubsystemDiscontinuation Subsystem = "discontinuation"

	// Heterogeneity keeps class assignment, parameter sampling and
	// catastrophic events on separate streams.
	SubsystemHeterogeneityTrajectory   Subsystem = "heterogeneity_trajectory"
	SubsystemHeterogeneityParams       Subsystem = "heterogeneity_params"
	SubsystemHeterogeneityCatastrophic Subsystem = "heterogeneity_catastrophic"
)

// AllSubsystems lists every stream a run may open.
var AllSubsystems = []Subsystem{
	SubsystemArrivals,
	SubsystemBaseline,
	SubsystemDisease,
	SubsystemVision,
	SubsystemMeasurement,
	SubsystemDiscontinuation,
	SubsystemHeterogeneityTrajectory,
	SubsystemHeterogeneityParams,
	SubsystemHeterogeneityCatastrophic,
}

// SubsystemSeed derives the seed of one stream: the master seed for
// arrivals, otherwise the master seed XOR the FNV-1a hash of the name.
func SubsystemSeed(master int64, s Subsystem) int64 {
	if s == SubsystemArrivals {
		return master
	}
	h := fnv.New64a()
	h.Write([]byte(s))
	return master ^ int64(h.Sum64())
}

// PartitionedRNG hands out one lazily created *rand.Rand per subsystem.
// Turning on a feature that draws from its own stream never shifts the
// sequence any other stream produces.
//
// Not safe for concurrent use; each run owns its own instance.
type PartitionedRNG struct {
	seed    int64
	streams map[Subsystem]*rand.Rand
}

// NewPartitionedRNG returns the stream set for a master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{seed: seed, streams: make(map[Subsystem]*rand.Rand)}
}

// ForSubsystem returns the stream for s, creating it on first use. Repeated
// calls return the same instance.
func (p *PartitionedRNG) ForSubsystem(s Subsystem) *rand.Rand {
	rng, ok := p.streams[s]
	if !ok {
		rng = rand.New(rand.NewSource(SubsystemSeed(p.seed, s)))
		p.streams[s] = rng
	}
	return rng
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 { return p.seed }
