package playback

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-timeline/internal/observability"
	"github.com/couchcryptid/storm-data-timeline/internal/selection"
)

// manualScheduler holds at most one pending tick and fires it on demand.
type manualScheduler struct {
	pending   func(time.Time)
	scheduled int
	cancelled int
}

func (m *manualScheduler) ScheduleNextTick(fn func(time.Time)) {
	m.pending = fn
	m.scheduled++
}

func (m *manualScheduler) CancelScheduledTick() {
	m.pending = nil
	m.cancelled++
}

// fire runs the pending tick, if any, and reports whether one ran.
func (m *manualScheduler) fire(now time.Time) bool {
	fn := m.pending
	if fn == nil {
		return false
	}
	m.pending = nil
	fn(now)
	return true
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestController(t *testing.T, totalWeeks int) (*Controller, *selection.Store, *manualScheduler) {
	t.Helper()
	store := selection.NewStore(totalWeeks)
	sched := &manualScheduler{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(store, sched, DefaultSpeed, logger, observability.NewMetricsForTesting())
	t.Cleanup(c.Close)
	return c, store, sched
}

func TestController_FirstTickContributesZero(t *testing.T) {
	c, store, sched := newTestController(t, 10)
	c.Play()

	require.True(t, sched.fire(t0))
	assert.InDelta(t, 0.0, c.State().Position, 1e-9)
	assert.Equal(t, 0, store.Selected())

	require.True(t, sched.fire(t0.Add(1500*time.Millisecond)))
	assert.InDelta(t, 1.5, c.State().Position, 1e-9)
	assert.Equal(t, 1, store.Selected())
}

func TestController_StopsAtLastWeek(t *testing.T) {
	// 2020-01-01 to 2020-01-29 is four weeks.
	c, store, sched := newTestController(t, 4)
	for c.State().Speed != MaxSpeed {
		c.CycleSpeed()
	}
	c.Play()

	require.True(t, sched.fire(t0))
	require.True(t, sched.fire(t0.Add(time.Second)))

	st := c.State()
	assert.False(t, st.Playing)
	assert.Equal(t, 3, st.Week)
	assert.Equal(t, 3, store.Selected())
	assert.InDelta(t, 3.0, st.Position, 1e-9)
	assert.False(t, sched.fire(t0.Add(2*time.Second)), "no tick scheduled after reaching the end")
}

func TestController_SpeedCycle(t *testing.T) {
	c, _, _ := newTestController(t, 10)

	var got []Speed
	for range 6 {
		got = append(got, c.CycleSpeed())
	}
	assert.Equal(t, []Speed{2, 4, 8, 16, 32, 1}, got)
}

func TestController_SpeedChangeAppliesNextTick(t *testing.T) {
	c, _, sched := newTestController(t, 100)
	var saved []Speed
	c.OnSpeedChange(func(s Speed) { saved = append(saved, s) })

	c.Play()
	sched.fire(t0)
	sched.fire(t0.Add(time.Second))
	require.InDelta(t, 1.0, c.State().Position, 1e-9)

	c.CycleSpeed()
	assert.InDelta(t, 1.0, c.State().Position, 1e-9, "speed change does not move the position")
	assert.True(t, c.State().Playing)

	sched.fire(t0.Add(2 * time.Second))
	assert.InDelta(t, 3.0, c.State().Position, 1e-9)
	assert.Equal(t, []Speed{2}, saved)
}

func TestController_ScrubWhilePlayingPauses(t *testing.T) {
	c, store, sched := newTestController(t, 20)
	store.Set(5)
	c.Play()
	sched.fire(t0)
	sched.fire(t0.Add(200 * time.Millisecond))
	require.Equal(t, 5, store.Selected())

	got := c.Scrub(2)

	assert.Equal(t, 2, got)
	st := c.State()
	assert.False(t, st.Playing)
	assert.Equal(t, 2, st.Week)
	assert.InDelta(t, 2.0, st.Position, 1e-9)
	assert.False(t, sched.fire(t0.Add(time.Second)), "pending tick cancelled by scrub")
	assert.Equal(t, 2, store.Selected())
}

func TestController_ScrubClamps(t *testing.T) {
	c, store, _ := newTestController(t, 4)

	assert.Equal(t, 3, c.Scrub(99))
	assert.Equal(t, 0, c.Scrub(-5))
	assert.Equal(t, 0, store.Selected())
}

func TestController_ScrubSameWeekWhilePlayingStillPauses(t *testing.T) {
	c, _, sched := newTestController(t, 10)
	c.Play()
	sched.fire(t0)

	c.Scrub(0)

	assert.False(t, c.State().Playing)
}

func TestController_ExternalWritePausesAndResyncs(t *testing.T) {
	c, store, sched := newTestController(t, 20)
	c.Play()
	sched.fire(t0)
	sched.fire(t0.Add(2500 * time.Millisecond))
	require.Equal(t, 2, store.Selected())

	store.Set(11)

	st := c.State()
	assert.False(t, st.Playing)
	assert.InDelta(t, 11.0, st.Position, 1e-9)
	assert.Nil(t, sched.pending)
}

func TestController_ExternalWriteWhilePausedResyncs(t *testing.T) {
	c, store, _ := newTestController(t, 20)
	store.Set(7)
	assert.InDelta(t, 7.0, c.State().Position, 1e-9)

	c.Play()
	assert.True(t, c.State().Playing)
	assert.InDelta(t, 7.0, c.State().Position, 1e-9)
}

func TestController_ResumeTakesFreshReference(t *testing.T) {
	c, _, sched := newTestController(t, 100)
	c.Play()
	sched.fire(t0)
	sched.fire(t0.Add(time.Second))
	c.Pause()

	// A long pause must not show up as elapsed time after resuming.
	c.Play()
	sched.fire(t0.Add(time.Hour))
	assert.InDelta(t, 1.0, c.State().Position, 1e-9)
	sched.fire(t0.Add(time.Hour + 500*time.Millisecond))
	assert.InDelta(t, 1.5, c.State().Position, 1e-9)
}

func TestController_WritesOnlyOnIntegerCrossings(t *testing.T) {
	c, store, sched := newTestController(t, 100)
	var writes []int
	cancel := store.Subscribe(func(w int) { writes = append(writes, w) })
	defer cancel()

	c.Play()
	now := t0
	sched.fire(now)
	for range 130 {
		now = now.Add(16 * time.Millisecond)
		sched.fire(now)
	}

	// 130 frames of 16ms at speed 1 is 2.08 weeks.
	assert.Equal(t, []int{1, 2}, writes)
}

func TestController_WeekIsFloorOfPositionWhilePlaying(t *testing.T) {
	c, store, sched := newTestController(t, 260)
	c.CycleSpeed()
	c.CycleSpeed()
	c.Play()

	now := t0
	sched.fire(now)
	for c.State().Playing {
		now = now.Add(17 * time.Millisecond)
		require.True(t, sched.fire(now))
		st := c.State()
		if st.Playing {
			require.Equal(t, int(math.Floor(st.Position)), store.Selected())
		}
	}
	assert.Equal(t, 259, store.Selected())
}

func TestController_Toggle(t *testing.T) {
	c, _, sched := newTestController(t, 10)

	c.Toggle()
	assert.True(t, c.State().Playing)
	assert.NotNil(t, sched.pending)

	c.Toggle()
	assert.False(t, c.State().Playing)
	assert.Nil(t, sched.pending)
}

func TestController_PlayingChangeHook(t *testing.T) {
	c, _, sched := newTestController(t, 4)
	var seen []bool
	c.OnPlayingChange(func(p bool) { seen = append(seen, p) })

	c.Play()
	c.Pause()
	c.Pause()
	c.Play()
	sched.fire(t0)
	sched.fire(t0.Add(10 * time.Second))

	assert.Equal(t, []bool{true, false, true, false}, seen)
}

func TestController_PlayTwiceSchedulesOnce(t *testing.T) {
	c, _, sched := newTestController(t, 10)
	c.Play()
	c.Play()
	assert.Equal(t, 1, sched.scheduled)
}

func TestController_BackwardsClockIgnored(t *testing.T) {
	c, _, sched := newTestController(t, 10)
	c.Play()
	sched.fire(t0)
	sched.fire(t0.Add(-time.Second))
	assert.InDelta(t, 0.0, c.State().Position, 1e-9)
}
