package heterogeneity

import (
	"math/rand"

	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/vision"
)

// VisionUpdater scales the wrapped updater's output by the patient's
// characteristics: gains by ResponseMultiplier, losses by
// ProgressionMultiplier. Patients without characteristics get the base
// response unchanged.
type VisionUpdater struct {
	Base vision.Updater
}

// NewVisionUpdater wraps base.
func NewVisionUpdater(base vision.Updater) *VisionUpdater {
	return &VisionUpdater{Base: base}
}

func (u *VisionUpdater) Delta(rng *rand.Rand, p *patient.Patient, from, to disease.State, treated bool, elapsedDays int) float64 {
	d := u.Base.Delta(rng, p, from, to, treated, elapsedDays)
	if p == nil || p.Characteristics == nil {
		return d
	}
	if d > 0 {
		return d * p.Characteristics.ResponseMultiplier
	}
	return d * p.Characteristics.ProgressionMultiplier
}
