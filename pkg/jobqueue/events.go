package jobqueue

import "sync"

// Event identifies a queue lifecycle notification.
type Event string

const (
	EventJobAdded     Event = "job:added"
	EventJobStarted   Event = "job:started"
	EventJobCompleted Event = "job:completed"
	EventJobFailed    Event = "job:failed"
	EventQueuePaused  Event = "queue:paused"
	EventQueueResumed Event = "queue:resumed"
	EventQueueErrored Event = "queue:errored"
)

// EventPayload carries the context of an emitted event. Job is set for
// job-level events, Err for failure and queue error events.
type EventPayload struct {
	Queue string
	Event Event
	Job   *Job
	Err   error
}

// EventHandler consumes queue events. Handlers run synchronously on the
// goroutine that triggered the event and must not block.
type EventHandler func(EventPayload)

type subscription struct {
	fn   EventHandler
	once bool
}

// emitter is an explicit observer list shared by both queue adapters.
// Each queue owns one; there is no process-wide event bus.
type emitter struct {
	mu   sync.Mutex
	subs map[Event]map[int]*subscription
	next int
}

func newEmitter() *emitter {
	return &emitter{subs: make(map[Event]map[int]*subscription)}
}

// subscribe registers a handler and returns an unsubscribe function.
// Unsubscribing twice is a no-op.
func (e *emitter) subscribe(ev Event, fn EventHandler, once bool) func() {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs[ev] == nil {
		e.subs[ev] = make(map[int]*subscription)
	}
	id := e.next
	e.next++
	e.subs[ev][id] = &subscription{fn: fn, once: once}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs[ev], id)
	}
}

// emit delivers the payload to every subscriber of the event. Handlers
// registered with once are removed before delivery so re-entrant emits
// cannot double-fire them.
func (e *emitter) emit(p EventPayload) {
	e.mu.Lock()
	handlers := make([]EventHandler, 0, len(e.subs[p.Event]))
	for id, sub := range e.subs[p.Event] {
		handlers = append(handlers, sub.fn)
		if sub.once {
			delete(e.subs[p.Event], id)
		}
	}
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(p)
	}
}
