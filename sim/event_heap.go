package sim

import "container/heap"

// eventKey is the total order of the DES queue. Two events never share a
// key because event IDs are unique.
type eventKey struct {
	day      int64
	priority int
	ordinal  int
	id       uint64
}

func keyOf(e Event) eventKey {
	return eventKey{
		day:      e.Timestamp(),
		priority: EventTypePriority[e.Type()],
		ordinal:  e.Ordinal(),
		id:       e.EventID(),
	}
}

// before compares day, then type priority, then patient ordinal (the ABS
// per-day iteration order), then event ID.
func (k eventKey) before(o eventKey) bool {
	switch {
	case k.day != o.day:
		return k.day < o.day
	case k.priority != o.priority:
		return k.priority < o.priority
	case k.ordinal != o.ordinal:
		return k.ordinal < o.ordinal
	default:
		return k.id < o.id
	}
}

type queuedEvent struct {
	key   eventKey
	event Event
}

// eventQueue is the container/heap backing store. Keys are computed once
// on push.
type eventQueue []queuedEvent

func (q eventQueue) Len() int           { return len(q) }
func (q eventQueue) Less(i, j int) bool { return q[i].key.before(q[j].key) }
func (q eventQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(queuedEvent)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = queuedEvent{}
	*q = old[:n-1]
	return item
}

// EventHeap is the DES min-priority queue.
type EventHeap struct {
	q eventQueue
}

// NewEventHeap creates an empty queue.
func NewEventHeap() *EventHeap {
	return &EventHeap{}
}

func (h *EventHeap) Len() int { return h.q.Len() }

// Schedule adds an event.
func (h *EventHeap) Schedule(e Event) {
	heap.Push(&h.q, queuedEvent{key: keyOf(e), event: e})
}

// PopNext removes and returns the earliest event, or nil when empty.
func (h *EventHeap) PopNext() Event {
	if h.q.Len() == 0 {
		return nil
	}
	return heap.Pop(&h.q).(queuedEvent).event
}

// Peek returns the earliest event without removing it.
func (h *EventHeap) Peek() Event {
	if h.q.Len() == 0 {
		return nil
	}
	return h.q[0].event
}
