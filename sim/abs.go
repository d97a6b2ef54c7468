package sim

import (
	"github.com/sirupsen/logrus"

	"github.com/amd-sim/amd-sim/sim/patient"
)

// EngineABS and EngineDES name the two time-advance strategies.
const (
	EngineABS = "abs"
	EngineDES = "des"
)

// agent is one enrolled patient and its own schedule.
type agent struct {
	patient   *patient.Patient
	nextVisit int
	nextTick  int
}

// ABSEngine advances a day counter and, each day, steps every agent whose
// enrollment, progression step or visit falls on that day.
type ABSEngine struct {
	cfg RunConfig
}

// NewABSEngine validates cfg and builds its components once so that
// configuration errors surface here rather than from Run.
func NewABSEngine(cfg RunConfig) (*ABSEngine, error) {
	if _, err := newCare(cfg); err != nil {
		return nil, err
	}
	return &ABSEngine{cfg: cfg}, nil
}

// Run simulates the cohort from the start date to the horizon. Each call
// starts from fresh state, so repeated runs are identical.
//
// Each day is processed in three passes: enrollments, then progression
// steps, then visits; within a pass agents go in enrollment order.
func (e *ABSEngine) Run() (*SimulationResults, error) {
	c, err := newCare(e.cfg)
	if err != nil {
		return nil, err
	}
	arrivals := c.arrivals()
	logrus.Infof("ABS run: %d patients over %d days", len(arrivals), c.horizon)

	agents := make([]*agent, 0, len(arrivals))
	next := 0
	for day := 0; day < c.horizon; day++ {
		for next < len(arrivals) && arrivals[next] == day {
			p, visit, tick := c.enroll(next, day)
			agents = append(agents, &agent{patient: p, nextVisit: visit, nextTick: tick})
			next++
		}
		for _, a := range agents {
			if a.nextTick == day {
				a.nextTick = c.tick(a.patient, day)
			}
		}
		for _, a := range agents {
			if a.nextVisit != day {
				continue
			}
			if a.nextVisit, err = c.visit(a.patient, day); err != nil {
				return nil, err
			}
		}
	}

	logrus.Infof("[day %05d] ABS simulation ended", c.horizon)
	return c.results(EngineABS), nil
}
