package sim

import (
	"github.com/sirupsen/logrus"
)

// DESEngine pops events from a global min-heap. It shares every decision
// with ABSEngine through the care pathway; only the choice of what happens
// next differs.
type DESEngine struct {
	cfg    RunConfig
	care   *care
	events *EventHeap
	nextID uint64
}

// NewDESEngine validates cfg and builds its components once so that
// configuration errors surface here rather than from Run.
func NewDESEngine(cfg RunConfig) (*DESEngine, error) {
	if _, err := newCare(cfg); err != nil {
		return nil, err
	}
	return &DESEngine{cfg: cfg}, nil
}

func (d *DESEngine) base(day int, typ EventType, ordinal int) BaseEvent {
	d.nextID++
	return BaseEvent{timestamp: int64(day), eventType: typ, ordinal: ordinal, eventID: d.nextID}
}

func (d *DESEngine) schedule(e Event) {
	d.events.Schedule(e)
}

// Run simulates the cohort from the start date to the horizon. Each call
// starts from fresh state, so repeated runs are identical.
func (d *DESEngine) Run() (*SimulationResults, error) {
	c, err := newCare(d.cfg)
	if err != nil {
		return nil, err
	}
	d.care = c
	d.events = NewEventHeap()
	d.nextID = 0

	arrivals := c.arrivals()
	logrus.Infof("DES run: %d patients over %d days", len(arrivals), c.horizon)
	for ordinal, day := range arrivals {
		d.schedule(&EnrollmentEvent{BaseEvent: d.base(day, EventTypeEnrollment, ordinal)})
	}

	processed := 0
	for d.events.Len() > 0 {
		ev := d.events.PopNext()
		if ev.Timestamp() >= int64(c.horizon) {
			break
		}
		logrus.Tracef("[day %05d] Executing %T", ev.Timestamp(), ev)
		if err := ev.Execute(d); err != nil {
			return nil, err
		}
		processed++
	}

	logrus.Infof("[day %05d] DES simulation ended after %d events", c.horizon, processed)
	return c.results(EngineDES), nil
}
