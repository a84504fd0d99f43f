package frame

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loop collects dispatched callbacks so the test goroutine can run them,
// standing in for a session event loop.
type loop chan func()

func (l loop) dispatch(fn func()) { l <- fn }

func (l loop) runNext(t *testing.T) {
	t.Helper()
	select {
	case fn := <-l:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no tick dispatched")
	}
}

func (l loop) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case fn := <-l:
		fn()
	case <-time.After(50 * time.Millisecond):
	}
}

func waitForTimer(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
}

func TestDriver_TickRunsWithClockTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(start)
	l := make(loop, 4)
	d := NewDriver(fc, 16*time.Millisecond, l.dispatch)

	var got []time.Time
	d.ScheduleNextTick(func(now time.Time) { got = append(got, now) })
	waitForTimer(t, fc)
	fc.Advance(16 * time.Millisecond)
	l.runNext(t)

	assert.Equal(t, []time.Time{start.Add(16 * time.Millisecond)}, got)
}

func TestDriver_NothingBeforeInterval(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := make(loop, 4)
	d := NewDriver(fc, 16*time.Millisecond, l.dispatch)

	called := false
	d.ScheduleNextTick(func(time.Time) { called = true })
	waitForTimer(t, fc)
	fc.Advance(10 * time.Millisecond)
	l.expectIdle(t)

	assert.False(t, called)
}

func TestDriver_CancelBeforeFire(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := make(loop, 4)
	d := NewDriver(fc, 16*time.Millisecond, l.dispatch)

	called := false
	d.ScheduleNextTick(func(time.Time) { called = true })
	waitForTimer(t, fc)
	d.CancelScheduledTick()
	fc.Advance(time.Second)
	l.expectIdle(t)

	assert.False(t, called)
}

func TestDriver_CancelAfterFireDiscardsPending(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := make(loop, 4)
	d := NewDriver(fc, 16*time.Millisecond, l.dispatch)

	called := false
	d.ScheduleNextTick(func(time.Time) { called = true })
	waitForTimer(t, fc)
	fc.Advance(16 * time.Millisecond)

	// The timer has fired and queued the callback; cancelling now must still win.
	var queued func()
	select {
	case queued = <-l:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick dispatched")
	}
	d.CancelScheduledTick()
	queued()

	assert.False(t, called)
}

func TestDriver_RescheduleReplacesPending(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := make(loop, 4)
	d := NewDriver(fc, 16*time.Millisecond, l.dispatch)

	var calls []string
	d.ScheduleNextTick(func(time.Time) { calls = append(calls, "first") })
	d.ScheduleNextTick(func(time.Time) { calls = append(calls, "second") })
	waitForTimer(t, fc)
	fc.Advance(16 * time.Millisecond)
	l.runNext(t)
	l.expectIdle(t)

	assert.Equal(t, []string{"second"}, calls)
}

func TestDriver_ChainedTicks(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := make(loop, 4)
	d := NewDriver(fc, 16*time.Millisecond, l.dispatch)

	count := 0
	var tick func(time.Time)
	tick = func(time.Time) {
		count++
		if count < 3 {
			d.ScheduleNextTick(tick)
		}
	}
	d.ScheduleNextTick(tick)
	for range 3 {
		waitForTimer(t, fc)
		fc.Advance(16 * time.Millisecond)
		l.runNext(t)
	}

	assert.Equal(t, 3, count)
}

func TestNewDriver_DefaultInterval(t *testing.T) {
	d := NewDriver(clockwork.NewFakeClock(), 0, func(fn func()) { fn() })
	assert.Equal(t, DefaultInterval, d.Interval())
}
