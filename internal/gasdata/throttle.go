package gasdata

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum interval between outbound oracle calls. One Throttle may be
// shared by several services to keep a single clock per process.
type Throttle struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	last time.Time
}

// NewThrottle builds a throttle on the wall clock.
func NewThrottle(interval time.Duration) *Throttle {
	return NewThrottleWithClock(interval, time.Now, sleepContext)
}

// NewThrottleWithClock builds a throttle on an injected clock (tests).
func NewThrottleWithClock(interval time.Duration, now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Throttle {
	if interval < 0 {
		interval = 0
	}
	return &Throttle{interval: interval, now: now, sleep: sleep}
}

// Interval returns the configured floor.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Last returns the most recent reserved dispatch instant.
func (t *Throttle) Last() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Wait reserves the next dispatch slot and sleeps until it. The slot is reserved before
// sleeping, so concurrent callers are spaced out rather than released together.
func (t *Throttle) Wait(ctx context.Context) (time.Time, error) {
	t.mu.Lock()
	now := t.now()
	dispatch := now
	if !t.last.IsZero() {
		if earliest := t.last.Add(t.interval); earliest.After(now) {
			dispatch = earliest
		}
	}
	t.last = dispatch
	t.mu.Unlock()

	if delay := dispatch.Sub(now); delay > 0 {
		if err := t.sleep(ctx, delay); err != nil {
			return dispatch, err
		}
	}
	return dispatch, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
