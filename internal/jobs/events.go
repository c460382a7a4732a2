package jobs

import (
	"sync"
	"time"
)

// EventKind classifies messages emitted during job execution.
type EventKind string

const (
	EventKindStatus   EventKind = "status"
	EventKindProgress EventKind = "progress"
	EventKindError    EventKind = "error"
	EventKindDone     EventKind = "done"
)

// Terminal reports whether k ends a job's event stream.
func (k EventKind) Terminal() bool {
	return k == EventKindDone || k == EventKindError
}

// Event is a sequenced payload consumed by stream subscribers.
type Event struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	JobID     string         `json:"jobId"`
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload"`
}

// Message returns the payload "message" value, if any.
func (e Event) Message() string {
	msg, _ := e.Payload["message"].(string)
	return msg
}

// EventBus stores recent events of all jobs and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns the bus sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	return b.filter(seq, "")
}

// ForJob returns one job's events with sequence strictly greater than seq.
func (b *EventBus) ForJob(jobID string, seq int64) []Event {
	return b.filter(seq, jobID)
}

func (b *EventBus) filter(seq int64, jobID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq <= seq {
			continue
		}
		if jobID != "" && event.JobID != jobID {
			continue
		}
		out = append(out, event)
	}
	return out
}
