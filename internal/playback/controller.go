// Package playback animates the selected week.
//
// The Controller keeps a continuous position measured in weeks. Each clock
// tick advances it by speed * elapsed seconds, so at speed 1 playback moves
// one week per real-time second. The selected week in the store is the floor
// of that position and is only written when an integer boundary is crossed.
//
// Every method, and every tick callback, must run on the same goroutine as
// the store it drives.
package playback

import (
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/storm-data-timeline/internal/observability"
)

// secondsPerWeek is the real time one week of playback takes at speed 1.
const secondsPerWeek = 1.0

// TickScheduler delivers frame ticks. Implementations must invoke the
// callback on the controller's goroutine, at most once per schedule, and
// never after CancelScheduledTick.
type TickScheduler interface {
	ScheduleNextTick(fn func(now time.Time))
	CancelScheduledTick()
}

// WeekStore is the shared selected-week state the controller writes to.
type WeekStore interface {
	Selected() int
	Set(week int) int
	TotalWeeks() int
	Subscribe(fn func(week int)) (cancel func())
}

// State is a point-in-time view of playback.
type State struct {
	Playing  bool    `json:"playing"`
	Speed    Speed   `json:"speed"`
	Position float64 `json:"position"`
	Week     int     `json:"week"`
}

// Controller owns play/pause state, speed, and the continuous position.
type Controller struct {
	store     WeekStore
	scheduler TickScheduler
	logger    *slog.Logger
	metrics   *observability.Metrics

	playing  bool
	speed    Speed
	position float64
	lastTick time.Time
	hasTick  bool

	// writing is set while the controller itself writes to the store so its
	// own notifications are not mistaken for a manual change.
	writing bool

	onSpeedChange   func(Speed)
	onPlayingChange func(bool)
	unsubscribe     func()
}

// New creates a paused Controller positioned at the store's selected week.
func New(store WeekStore, scheduler TickScheduler, speed Speed, logger *slog.Logger, metrics *observability.Metrics) *Controller {
	if !speed.Valid() {
		speed = DefaultSpeed
	}
	c := &Controller{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
		metrics:   metrics,
		speed:     speed,
		position:  float64(store.Selected()),
	}
	c.unsubscribe = store.Subscribe(c.onStoreChange)
	metrics.PlaybackSpeed.Set(float64(speed))
	metrics.PlaybackPlaying.Set(0)
	return c
}

// OnSpeedChange registers a hook called after every speed change. The hook
// runs synchronously and must not block.
func (c *Controller) OnSpeedChange(fn func(Speed)) {
	c.onSpeedChange = fn
}

// OnPlayingChange registers a hook called after every play/pause transition.
// The hook runs synchronously and must not block.
func (c *Controller) OnPlayingChange(fn func(playing bool)) {
	c.onPlayingChange = fn
}

// Close stops playback and detaches from the store.
func (c *Controller) Close() {
	c.stop("close")
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// State returns the current playback state.
func (c *Controller) State() State {
	return State{
		Playing:  c.playing,
		Speed:    c.speed,
		Position: c.position,
		Week:     c.store.Selected(),
	}
}

// Play starts playback from the currently selected week.
func (c *Controller) Play() {
	if c.playing {
		return
	}
	c.position = float64(c.store.Selected())
	c.hasTick = false
	c.playing = true
	c.metrics.PlaybackPlaying.Set(1)
	c.logger.Debug("playback started", "week", c.store.Selected(), "speed", int(c.speed))
	c.scheduler.ScheduleNextTick(c.tick)
	if c.onPlayingChange != nil {
		c.onPlayingChange(true)
	}
}

// Pause stops playback, keeping the current position.
func (c *Controller) Pause() {
	c.stop("pause")
}

// Toggle switches between playing and paused.
func (c *Controller) Toggle() {
	if c.playing {
		c.Pause()
		return
	}
	c.Play()
}

// CycleSpeed advances to the next speed in the cycle. The new speed applies
// from the next tick; the position is unchanged.
func (c *Controller) CycleSpeed() Speed {
	c.speed = c.speed.Next()
	c.metrics.PlaybackSpeed.Set(float64(c.speed))
	c.logger.Debug("playback speed changed", "speed", int(c.speed))
	if c.onSpeedChange != nil {
		c.onSpeedChange(c.speed)
	}
	return c.speed
}

// Scrub selects a week directly. A manual selection always wins: if playback
// is running it is paused first so the next frame cannot overwrite the
// user's choice. Returns the week actually stored after clamping.
func (c *Controller) Scrub(week int) int {
	c.stop("scrub")
	stored := c.write(week)
	c.position = float64(stored)
	return stored
}

func (c *Controller) tick(now time.Time) {
	if !c.playing {
		return
	}
	c.metrics.PlaybackTicks.Inc()

	// The first tick after Play only establishes the time reference.
	var elapsed float64
	if c.hasTick {
		elapsed = now.Sub(c.lastTick).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
	}
	c.lastTick = now
	c.hasTick = true

	c.position += float64(c.speed) * elapsed / secondsPerWeek

	total := c.store.TotalWeeks()
	if c.position >= float64(total) {
		last := max(total-1, 0)
		c.position = float64(last)
		c.write(last)
		c.stop("end")
		return
	}

	if week := int(math.Floor(c.position)); week != c.store.Selected() {
		c.write(week)
	}
	c.scheduler.ScheduleNextTick(c.tick)
}

// stop pauses playback. The last tick time is forgotten so a later Play
// starts from a fresh reference instead of a stale delta.
func (c *Controller) stop(reason string) {
	if !c.playing {
		return
	}
	c.playing = false
	c.hasTick = false
	c.lastTick = time.Time{}
	c.scheduler.CancelScheduledTick()
	c.metrics.PlaybackPlaying.Set(0)
	c.logger.Debug("playback stopped", "reason", reason, "week", c.store.Selected())
	if c.onPlayingChange != nil {
		c.onPlayingChange(false)
	}
}

func (c *Controller) write(week int) int {
	before := c.store.Selected()
	c.writing = true
	stored := c.store.Set(week)
	c.writing = false
	if stored != before {
		c.metrics.WeekChanges.Inc()
	}
	return stored
}

// onStoreChange handles writes made by anyone other than the controller.
func (c *Controller) onStoreChange(week int) {
	if c.writing {
		return
	}
	c.stop("external")
	c.position = float64(week)
}
