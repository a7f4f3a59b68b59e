package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the primitive type that emitted an event.
type EventKind string

const (
	KindCircuitBreaker EventKind = "circuit_breaker"
	KindHealthChecker  EventKind = "health_checker"
)

// EventType classifies a transition.
type EventType string

const (
	// EventStateChange is a circuit breaker state transition.
	EventStateChange EventType = "state_change"
	// EventDegraded marks a health checker flipping healthy → unhealthy.
	EventDegraded EventType = "degraded"
	// EventRecovered marks a health checker flipping unhealthy → healthy.
	EventRecovered EventType = "recovered"
)

// Event is an immutable transition record.
type Event struct {
	ID   string    `json:"id"`
	Kind EventKind `json:"kind"`
	Name string    `json:"name"`
	Type EventType `json:"type"`
	From string    `json:"from,omitempty"`
	To   string    `json:"to,omitempty"`
	At   time.Time `json:"at"`
}

// Publisher fans transition events out to a single bounded channel.
// Publish never blocks: when the buffer is full the event is dropped and
// counted, making notification backpressure explicit rather than implicit.
type Publisher struct {
	mu      sync.Mutex
	ch      chan Event
	dropped uint64
	closed  bool
}

// DefaultEventBuffer is the buffer size used when none is configured.
const DefaultEventBuffer = 256

// NewPublisher creates a publisher with the given buffer size.
func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Publisher{ch: make(chan Event, buffer)}
}

// Publish enqueues an event, assigning an ID and timestamp if unset.
// Events published after Close, or while the buffer is full, are dropped.
func (p *Publisher) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.dropped++
		return
	}

	select {
	case p.ch <- e:
	default:
		p.dropped++
	}
}

// Events returns the receive side of the event channel. The channel is closed
// by Close; consumers should range over it.
func (p *Publisher) Events() <-chan Event {
	return p.ch
}

// Dropped returns the number of events discarded because the buffer was full
// or the publisher was closed.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close closes the event channel. Publish becomes a counted no-op.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.ch)
}
