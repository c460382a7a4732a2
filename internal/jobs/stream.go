package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long a subscriber waits before a keepalive.
const DefaultIdleTimeout = 600 * time.Second

var (
	// ErrStreamClosed is returned when publishing after a terminal event.
	ErrStreamClosed = errors.New("event stream closed")
	// ErrSubscriberGone is returned when the consumer detached.
	ErrSubscriberGone = errors.New("event subscriber gone")
	// ErrIdle is returned by Next when no event arrived within the idle timeout.
	ErrIdle = errors.New("event stream idle")
)

// Stream is the single-producer, single-consumer event queue of one job.
// The first done or error event closes it.
type Stream struct {
	jobID   string
	ch      chan Event
	history *EventBus

	send     sync.Mutex
	mu       sync.Mutex
	seq      int64
	closed   bool
	detached chan struct{}
	detach   sync.Once
}

// NewStream creates a stream with the given buffer. A non-nil history bus
// also records every published event.
func NewStream(jobID string, buffer int, history *EventBus) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{
		jobID:    jobID,
		ch:       make(chan Event, buffer),
		history:  history,
		detached: make(chan struct{}),
	}
}

// JobID returns the job the stream belongs to.
func (s *Stream) JobID() string {
	return s.jobID
}

// Publish enqueues one event. It blocks while the buffer is full and the
// subscriber is still attached.
func (s *Stream) Publish(kind EventKind, payload map[string]any) error {
	s.send.Lock()
	defer s.send.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.seq++
	event := Event{
		Seq:       s.seq,
		Timestamp: time.Now().UTC(),
		JobID:     s.jobID,
		Kind:      kind,
		Payload:   payload,
	}
	terminal := kind.Terminal()
	if terminal {
		s.closed = true
	}
	s.mu.Unlock()

	if s.history != nil {
		s.history.Publish(event)
	}

	if terminal {
		defer close(s.ch)
	}

	select {
	case <-s.detached:
		return ErrSubscriberGone
	default:
	}

	select {
	case s.ch <- event:
		return nil
	case <-s.detached:
		return ErrSubscriberGone
	}
}

// Closed reports whether a terminal event has been published.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Next returns the next event in FIFO order. It returns ErrIdle after idle
// without an event, io.EOF after the terminal event was delivered, and the
// context error when ctx ends.
func (s *Stream) Next(ctx context.Context, idle time.Duration) (Event, error) {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	timer := time.NewTimer(idle)
	defer timer.Stop()

	select {
	case event, ok := <-s.ch:
		if !ok {
			return Event{}, io.EOF
		}
		return event, nil
	case <-timer.C:
		return Event{}, ErrIdle
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Detach marks the subscriber as gone; the producer stops blocking on it.
func (s *Stream) Detach() {
	s.detach.Do(func() {
		close(s.detached)
	})
}

// Detached reports whether the subscriber has gone away.
func (s *Stream) Detached() bool {
	select {
	case <-s.detached:
		return true
	default:
		return false
	}
}
