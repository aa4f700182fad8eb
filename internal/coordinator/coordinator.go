// Package coordinator provides the shared polling primitive used by every
// integration: it refreshes a value from an external source on an interval,
// caches the last good result, and fans out change notifications so
// dependent entities never issue their own redundant vendor calls.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Health states reported per coordinator.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
)

// FetchFunc retrieves the current value from the external source. It is
// responsible for bounding its own latency; the coordinator imposes no
// timeout of its own.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Update is delivered to every subscriber once per refresh cycle.
// On failure Err is set and Value carries the previous cached value
// (zero value if no fetch has ever succeeded).
type Update[T any] struct {
	Value               T
	Err                 error
	ConsecutiveFailures int
}

// Subscriber receives refresh updates in subscription order.
type Subscriber[T any] func(Update[T])

type snapshot[T any] struct {
	value     T
	fetchedAt time.Time
}

type subscription[T any] struct {
	id uint64
	fn Subscriber[T]
}

// Coordinator polls an external source on a fixed-rate schedule. A failed
// fetch leaves the cached value untouched; consecutive failures are tracked
// so consumers can distinguish stale from unavailable.
type Coordinator[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	log      *logrus.Entry

	current atomic.Pointer[snapshot[T]]

	mu       sync.Mutex
	subs     []subscription[T]
	nextSub  uint64
	failures int
	started  bool
	stopped  bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a coordinator. The interval defaults to 30 seconds when zero.
func New[T any](name string, interval time.Duration, fetch FetchFunc[T], log *logrus.Logger) *Coordinator[T] {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Coordinator[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		log:      log.WithField("coordinator", name),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start performs an eager first fetch so callers have data before any
// dependents are created. On success the periodic loop is launched and the
// fetched value returned. On failure nothing is scheduled and the error is
// returned; the caller may invoke Start again later.
func (c *Coordinator[T]) Start(ctx context.Context) (T, error) {
	begin := time.Now()
	value, err := c.fetch(ctx)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		var zero T
		return zero, context.Canceled
	}
	if err != nil {
		c.failures++
		failures := c.failures
		subs := c.copySubsLocked()
		c.mu.Unlock()

		c.log.WithError(err).Warn("Initial refresh failed")
		c.notify(subs, Update[T]{Value: c.cachedOrZero(), Err: err, ConsecutiveFailures: failures})
		var zero T
		return zero, err
	}

	c.failures = 0
	c.current.Store(&snapshot[T]{value: value, fetchedAt: begin})
	subs := c.copySubsLocked()
	alreadyStarted := c.started
	c.started = true
	c.mu.Unlock()

	c.notify(subs, Update[T]{Value: value})

	if !alreadyStarted {
		go c.run(ctx, begin.Add(c.interval))
	}
	return value, nil
}

// Cached returns the most recently fetched value without triggering a fetch.
// The second return is false until the first successful fetch.
func (c *Coordinator[T]) Cached() (T, bool) {
	snap := c.current.Load()
	if snap == nil {
		var zero T
		return zero, false
	}
	return snap.value, true
}

// LastSuccess returns the time of the last successful fetch, zero if none.
func (c *Coordinator[T]) LastSuccess() time.Time {
	snap := c.current.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.fetchedAt
}

// ConsecutiveFailures returns the number of failed fetches since the last
// success.
func (c *Coordinator[T]) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// State reports the coordinator health: degraded while the trailing run of
// fetches has failed, healthy otherwise.
func (c *Coordinator[T]) State() string {
	if c.ConsecutiveFailures() > 0 {
		return StateDegraded
	}
	return StateHealthy
}

// Interval returns the configured refresh interval.
func (c *Coordinator[T]) Interval() time.Duration {
	return c.interval
}

// Subscribe registers a callback invoked after every refresh, success or
// failure. The returned closure removes the subscription.
func (c *Coordinator[T]) Subscribe(fn Subscriber[T]) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscription[T]{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subs {
			if sub.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Stop cancels the pending refresh timer and clears subscribers. A fetch
// already in flight completes and its result is discarded; subscribers are
// not notified after Stop returns. Idempotent.
func (c *Coordinator[T]) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.subs = nil
	started := c.started
	c.mu.Unlock()

	close(c.stopCh)
	if started {
		<-c.doneCh
	}
	c.log.Debug("Coordinator stopped")
}

// run drives the fixed-rate refresh loop. next is the deadline of the first
// scheduled refresh, measured from the start of the initial one.
func (c *Coordinator[T]) run(ctx context.Context, next time.Time) {
	defer close(c.doneCh)

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			begin := time.Now()
			c.refresh(ctx)
			// Fixed-rate: next tick is measured from the start of this
			// refresh, not from its completion.
			timer.Reset(c.interval - time.Since(begin))
		}
	}
}

// refresh runs one cycle: fetch, update state, notify subscribers in order.
func (c *Coordinator[T]) refresh(ctx context.Context) {
	begin := time.Now()
	value, err := c.fetch(ctx)

	c.mu.Lock()
	if c.stopped {
		// Stop raced the fetch; discard the result silently.
		c.mu.Unlock()
		return
	}

	if err != nil {
		c.failures++
	} else {
		c.failures = 0
		c.current.Store(&snapshot[T]{value: value, fetchedAt: begin})
	}
	failures := c.failures
	subs := c.copySubsLocked()
	c.mu.Unlock()

	if err != nil {
		c.log.WithError(err).WithField("consecutive_failures", failures).Warn("Refresh failed")
		c.notify(subs, Update[T]{Value: c.cachedOrZero(), Err: err, ConsecutiveFailures: failures})
		return
	}

	c.log.WithField("duration", time.Since(begin)).Debug("Refresh succeeded")
	c.notify(subs, Update[T]{Value: value})
}

func (c *Coordinator[T]) copySubsLocked() []subscription[T] {
	subs := make([]subscription[T], len(c.subs))
	copy(subs, c.subs)
	return subs
}

func (c *Coordinator[T]) cachedOrZero() T {
	value, _ := c.Cached()
	return value
}

// notify invokes subscribers in subscription order. A panicking subscriber
// must not prevent the remaining ones from running.
func (c *Coordinator[T]) notify(subs []subscription[T], update Update[T]) {
	for _, sub := range subs {
		c.invoke(sub.fn, update)
	}
}

func (c *Coordinator[T]) invoke(fn Subscriber[T], update Update[T]) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("Subscriber panicked during refresh notification")
		}
	}()
	fn(update)
}
