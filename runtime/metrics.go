package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/skillsenselab/faultkit/observability"
)

// snapshotLoop assembles a Status on a fixed interval, retains it for polling,
// fans it out to subscribers, and optionally exports it through OpenTelemetry
// instruments. It never sits on the request path.
type snapshotLoop struct {
	runtime  *Runtime
	interval time.Duration
	recorder *observability.ResilienceMetrics

	mu          sync.Mutex
	last        *Status
	subscribers []chan Status
	started     bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newSnapshotLoop(r *Runtime, interval time.Duration) *snapshotLoop {
	return &snapshotLoop{
		runtime:  r,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (sl *snapshotLoop) start() {
	sl.mu.Lock()
	sl.started = true
	sl.mu.Unlock()

	go func() {
		defer close(sl.done)
		ticker := time.NewTicker(sl.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sl.emit()
			case <-sl.stop:
				return
			}
		}
	}()
}

func (sl *snapshotLoop) stopLoop() {
	sl.stopOnce.Do(func() {
		close(sl.stop)
		sl.mu.Lock()
		started := sl.started
		subs := sl.subscribers
		sl.subscribers = nil
		sl.mu.Unlock()
		if started {
			<-sl.done
		}
		for _, ch := range subs {
			close(ch)
		}
	})
}

// emit assembles one snapshot and delivers it. Subscriber sends never block:
// a subscriber that has not drained its previous snapshot misses this one.
func (sl *snapshotLoop) emit() {
	status := sl.runtime.GetStatus()

	sl.mu.Lock()
	sl.last = &status
	subs := make([]chan Status, len(sl.subscribers))
	copy(subs, sl.subscribers)
	sl.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- status:
		default:
		}
	}

	if sl.recorder != nil {
		sl.record(status)
	}
}

func (sl *snapshotLoop) record(status Status) {
	ctx := context.Background()
	for _, s := range status.Breakers {
		sl.recorder.RecordBreaker(ctx, s)
	}
	for _, s := range status.Retries {
		sl.recorder.RecordRetry(ctx, s)
	}
	for _, s := range status.Bulkheads {
		sl.recorder.RecordBulkhead(ctx, s)
	}
	for _, s := range status.HealthCheckers {
		sl.recorder.RecordHealth(ctx, s)
	}
	for _, s := range status.RateLimiters {
		sl.recorder.RecordRateLimiter(ctx, s)
	}
	sl.recorder.RecordEventsDropped(ctx, status.EventsDropped)
}

func (sl *snapshotLoop) lastSnapshot() (Status, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.last == nil {
		return Status{}, false
	}
	return *sl.last, true
}

func (sl *snapshotLoop) subscribe() <-chan Status {
	ch := make(chan Status, 1)
	sl.mu.Lock()
	sl.subscribers = append(sl.subscribers, ch)
	sl.mu.Unlock()
	return ch
}

// LastSnapshot returns the most recent periodic snapshot, or false when the
// loop has not fired yet.
func (r *Runtime) LastSnapshot() (Status, bool) {
	return r.snapshots.lastSnapshot()
}

// Subscribe returns a channel receiving each periodic snapshot. The channel
// is buffered with capacity one; slow consumers skip snapshots rather than
// stall the loop. Closed by Shutdown.
func (r *Runtime) Subscribe() <-chan Status {
	return r.snapshots.subscribe()
}
