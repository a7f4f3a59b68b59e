package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/skillsenselab/faultkit/errors"
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name identifies this bulkhead for errors and metrics.
	Name string `mapstructure:"name"`
	// MaxConcurrent is the maximum number of concurrent calls.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gte=0"`
	// MaxQueueLength bounds the FIFO wait queue. 0 disables queueing:
	// saturated calls are rejected immediately.
	MaxQueueLength int `mapstructure:"max_queue_length" validate:"gte=0"`
}

// DefaultBulkheadConfig returns sensible defaults.
func DefaultBulkheadConfig(name string) BulkheadConfig {
	return BulkheadConfig{
		Name:           name,
		MaxConcurrent:  10,
		MaxQueueLength: 0,
	}
}

// BulkheadCounters accumulates lifetime admission statistics.
type BulkheadCounters struct {
	TotalCalls             uint64        `json:"total_calls"`
	Rejected               uint64        `json:"rejected"`
	QueuedTotal            uint64        `json:"queued_total"`
	MaxObservedConcurrency int           `json:"max_observed_concurrency"`
	TotalWaitTime          time.Duration `json:"total_wait_time"`
}

// bulkheadWaiter is one queued caller. Admission or shutdown is signalled
// exactly once on ready.
type bulkheadWaiter struct {
	ready    chan error
	queuedAt time.Time
}

// Bulkhead caps concurrent in-flight calls on a named resource. Excess
// callers queue in strict FIFO order up to a bound; beyond that they are
// rejected immediately. Queueing plus fast rejection realizes admission
// control: overload turns into explicit errors, not unbounded latency.
type Bulkhead struct {
	config BulkheadConfig

	mu       sync.Mutex
	active   int
	queue    []*bulkheadWaiter
	closed   bool
	counters BulkheadCounters
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.MaxQueueLength < 0 {
		config.MaxQueueLength = 0
	}

	return &Bulkhead{config: config}
}

// Name returns the bulkhead's registered name.
func (b *Bulkhead) Name() string { return b.config.Name }

// Execute runs operation within the bulkhead. A caller is admitted
// immediately when a slot is free, suspended in the FIFO queue when the
// queue has room, and otherwise rejected with BULKHEAD_FULL. A queued caller
// whose context is cancelled leaves the queue without executing.
func (b *Bulkhead) Execute(ctx context.Context, operation Operation) error {
	b.mu.Lock()
	b.counters.TotalCalls++

	if b.closed {
		b.mu.Unlock()
		return errors.ShuttingDown()
	}

	if b.active < b.config.MaxConcurrent {
		b.admitLocked()
		b.mu.Unlock()
		return b.run(ctx, operation)
	}

	if len(b.queue) < b.config.MaxQueueLength {
		w := &bulkheadWaiter{ready: make(chan error, 1), queuedAt: time.Now()}
		b.queue = append(b.queue, w)
		b.counters.QueuedTotal++
		b.mu.Unlock()

		select {
		case err := <-w.ready:
			if err != nil {
				return err
			}
			return b.run(ctx, operation)
		case <-ctx.Done():
			return b.abandon(w, ctx.Err())
		}
	}

	b.counters.Rejected++
	b.mu.Unlock()
	return errors.BulkheadFull(b.config.Name)
}

// admitLocked claims a slot. Callers must hold b.mu.
func (b *Bulkhead) admitLocked() {
	b.active++
	if b.active > b.counters.MaxObservedConcurrency {
		b.counters.MaxObservedConcurrency = b.active
	}
}

// run executes the operation and releases the slot on completion.
func (b *Bulkhead) run(ctx context.Context, operation Operation) error {
	defer b.release()
	return operation(ctx)
}

// release returns a slot. If callers are queued the slot transfers directly
// to the head of the queue, preserving FIFO admission.
func (b *Bulkhead) release() {
	b.mu.Lock()
	if len(b.queue) > 0 && !b.closed {
		w := b.queue[0]
		b.queue = b.queue[1:]
		b.counters.TotalWaitTime += time.Since(w.queuedAt)
		b.mu.Unlock()
		w.ready <- nil
		return
	}
	b.active--
	b.mu.Unlock()
}

// abandon removes a cancelled waiter from the queue. If admission raced the
// cancellation, the transferred slot is released before returning.
func (b *Bulkhead) abandon(w *bulkheadWaiter, cause error) error {
	b.mu.Lock()
	for i, queued := range b.queue {
		if queued == w {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			b.mu.Unlock()
			return cause
		}
	}
	b.mu.Unlock()

	// Already dequeued: the admission (or shutdown) signal is in flight.
	if err := <-w.ready; err != nil {
		return err
	}
	b.release()
	return cause
}

// Close drains the wait queue, rejecting every pending caller with
// SHUTTING_DOWN. In-flight operations run to completion; subsequent Execute
// calls fail immediately.
func (b *Bulkhead) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, w := range pending {
		w.ready <- errors.ShuttingDown()
	}
}

// BulkheadSnapshot is a point-in-time copy of bulkhead occupancy and counters.
type BulkheadSnapshot struct {
	Name            string           `json:"name"`
	Active          int              `json:"active"`
	Queued          int              `json:"queued"`
	MaxConcurrent   int              `json:"max_concurrent"`
	MaxQueueLength  int              `json:"max_queue_length"`
	Counters        BulkheadCounters `json:"counters"`
	AverageWaitTime time.Duration    `json:"average_wait_time"`
}

// Snapshot returns a consistent copy of the bulkhead's occupancy and counters.
func (b *Bulkhead) Snapshot() BulkheadSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BulkheadSnapshot{
		Name:           b.config.Name,
		Active:         b.active,
		Queued:         len(b.queue),
		MaxConcurrent:  b.config.MaxConcurrent,
		MaxQueueLength: b.config.MaxQueueLength,
		Counters:       b.counters,
	}
	if b.counters.QueuedTotal > 0 {
		snap.AverageWaitTime = b.counters.TotalWaitTime / time.Duration(b.counters.QueuedTotal)
	}
	return snap
}
