// Package frame provides the clock-driven TickScheduler used by the session.
package frame

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval approximates one display frame at 60Hz.
const DefaultInterval = 16 * time.Millisecond

// Driver schedules one tick at a time on a clockwork timer. The timer
// goroutine never runs the callback itself; it hands it to dispatch, which
// must execute it on the owner's goroutine.
type Driver struct {
	clock    clockwork.Clock
	interval time.Duration
	dispatch func(func())

	mu    sync.Mutex
	timer clockwork.Timer
	gen   uint64
}

// NewDriver creates a Driver. A non-positive interval uses DefaultInterval.
func NewDriver(clock clockwork.Clock, interval time.Duration, dispatch func(func())) *Driver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Driver{clock: clock, interval: interval, dispatch: dispatch}
}

// Interval returns the delay between a schedule and its tick.
func (d *Driver) Interval() time.Duration { return d.interval }

// ScheduleNextTick arms the next tick, replacing any tick still pending.
func (d *Driver) ScheduleNextTick(fn func(now time.Time)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.interval, func() {
		d.dispatch(func() {
			if !d.claim(gen) {
				return
			}
			fn(d.clock.Now())
		})
	})
}

// CancelScheduledTick stops the pending tick. A tick that already fired but
// has not run yet is discarded when it reaches the owner's goroutine.
func (d *Driver) CancelScheduledTick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// claim reports whether gen is still the live schedule and retires it so the
// callback runs at most once.
func (d *Driver) claim(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		return false
	}
	d.gen++
	d.timer = nil
	return true
}
