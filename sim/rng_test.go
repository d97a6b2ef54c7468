package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionedRNG_SameSeedSameStreams(t *testing.T) {
	// GIVEN two stream sets built from the same seed
	a := NewPartitionedRNG(42)
	b := NewPartitionedRNG(42)

	// WHEN each stream is drawn from in turn
	for _, s := range AllSubsystems {
		for i := 0; i < 3; i++ {
			// THEN both sets produce identical sequences
			assert.Equal(t, a.ForSubsystem(s).Float64(), b.ForSubsystem(s).Float64(), "%s draw %d", s, i)
		}
	}
}

func TestPartitionedRNG_StreamsAreIsolated(t *testing.T) {
	// GIVEN one set that draws heavily from the heterogeneity streams first
	busy := NewPartitionedRNG(7)
	for i := 0; i < 25; i++ {
		busy.ForSubsystem(SubsystemHeterogeneityCatastrophic).Float64()
		busy.ForSubsystem(SubsystemHeterogeneityTrajectory).Intn(3)
	}
	fresh := NewPartitionedRNG(7)

	// WHEN the disease stream is read from both
	// THEN the busy set's disease sequence is unaffected
	for i := 0; i < 5; i++ {
		assert.Equal(t, fresh.ForSubsystem(SubsystemDisease).Float64(), busy.ForSubsystem(SubsystemDisease).Float64())
	}
}

func TestPartitionedRNG_ArrivalsUseMasterSeed(t *testing.T) {
	arrivals := NewPartitionedRNG(42).ForSubsystem(SubsystemArrivals)
	direct := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		assert.Equal(t, direct.ExpFloat64(), arrivals.ExpFloat64())
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(1)
	assert.Empty(t, rng.streams)
	first := rng.ForSubsystem(SubsystemVision)
	assert.Same(t, first, rng.ForSubsystem(SubsystemVision))
	assert.Len(t, rng.streams, 1)
	assert.Equal(t, int64(1), rng.Seed())
}

func TestSubsystemSeed_DistinctPerSubsystem(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive", 42},
		{"zero", 0},
		{"negative", -1},
		{"max", math.MaxInt64},
		{"min", math.MinInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[int64]Subsystem, len(AllSubsystems))
			for _, s := range AllSubsystems {
				derived := SubsystemSeed(tt.seed, s)
				prev, dup := seen[derived]
				require.False(t, dup, "%s and %s share seed %d", s, prev, derived)
				seen[derived] = s
			}
			assert.Equal(t, tt.seed, SubsystemSeed(tt.seed, SubsystemArrivals))
		})
	}
}

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(42)
	rng.ForSubsystem(SubsystemDisease)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemDisease)
	}
}
