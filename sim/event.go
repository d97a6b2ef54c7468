package sim

import "github.com/amd-sim/amd-sim/sim/patient"

// EventType identifies the kind of DES event.
type EventType int

const (
	EventTypeEnrollment EventType = iota
	EventTypeProgression
	EventTypeVisit
)

// EventTypePriority orders same-day events: enrollments, then progression
// steps, then visits. This is the ABS engine's per-day pass order.
var EventTypePriority = map[EventType]int{
	EventTypeEnrollment:  0,
	EventTypeProgression: 1,
	EventTypeVisit:       2,
}

// Event defines the interface for all DES events.
// Each event has a Timestamp (in days since start) and an Execute method
// that advances simulation state and may schedule further events.
type Event interface {
	Timestamp() int64
	Type() EventType
	Ordinal() int // patient enrollment order, the same-day tie-break
	EventID() uint64
	Execute(*DESEngine) error
}

// BaseEvent provides common event fields
type BaseEvent struct {
	timestamp int64
	eventType EventType
	ordinal   int
	eventID   uint64
}

func (e *BaseEvent) Timestamp() int64 { return e.timestamp }

func (e *BaseEvent) Type() EventType { return e.eventType }

func (e *BaseEvent) Ordinal() int { return e.ordinal }

func (e *BaseEvent) EventID() uint64 { return e.eventID }

// EnrollmentEvent creates a patient and schedules its first visit and
// progression step.
type EnrollmentEvent struct {
	BaseEvent
}

func (e *EnrollmentEvent) Execute(d *DESEngine) error {
	day := int(e.timestamp)
	p, visit, tick := d.care.enroll(e.ordinal, day)
	if tick != noEvent {
		d.schedule(&ProgressionEvent{BaseEvent: d.base(tick, EventTypeProgression, e.ordinal), Patient: p})
	}
	if visit != noEvent {
		d.schedule(&VisitEvent{BaseEvent: d.base(visit, EventTypeVisit, e.ordinal), Patient: p})
	}
	return nil
}

// ProgressionEvent is one fixed-cadence disease step for one patient.
type ProgressionEvent struct {
	BaseEvent
	Patient *patient.Patient
}

func (e *ProgressionEvent) Execute(d *DESEngine) error {
	if next := d.care.tick(e.Patient, int(e.timestamp)); next != noEvent {
		d.schedule(&ProgressionEvent{BaseEvent: d.base(next, EventTypeProgression, e.ordinal), Patient: e.Patient})
	}
	return nil
}

// VisitEvent is one clinical visit: treatment, monitoring or retreatment.
type VisitEvent struct {
	BaseEvent
	Patient *patient.Patient
}

func (e *VisitEvent) Execute(d *DESEngine) error {
	next, err := d.care.visit(e.Patient, int(e.timestamp))
	if err != nil {
		return err
	}
	if next != noEvent {
		d.schedule(&VisitEvent{BaseEvent: d.base(next, EventTypeVisit, e.ordinal), Patient: e.Patient})
	}
	return nil
}
