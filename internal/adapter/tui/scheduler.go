package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// frameMsg is delivered by tea.Tick for an armed frame request.
type frameMsg struct {
	gen uint64
	at  time.Time
}

// Scheduler implements playback.TickScheduler on top of tea.Tick. Bubble Tea
// commands can only be returned from Update, so ScheduleNextTick just records
// the request and Update collects it with Cmd. Everything runs on the update
// goroutine; no locking.
type Scheduler struct {
	interval time.Duration
	gen      uint64
	fn       func(now time.Time)
	armed    bool
}

// NewScheduler returns a scheduler emitting one frame per interval while
// playback runs.
func NewScheduler(interval time.Duration) *Scheduler {
	return &Scheduler{interval: interval}
}

// ScheduleNextTick replaces any pending request with fn.
func (s *Scheduler) ScheduleNextTick(fn func(now time.Time)) {
	s.gen++
	s.fn = fn
	s.armed = true
}

// CancelScheduledTick drops the pending request. A tea.Tick already in flight
// is ignored when it arrives.
func (s *Scheduler) CancelScheduledTick() {
	s.gen++
	s.fn = nil
	s.armed = false
}

// Cmd returns the tea.Tick for a request made since the last call, or nil.
func (s *Scheduler) Cmd() tea.Cmd {
	if !s.armed {
		return nil
	}
	s.armed = false
	gen := s.gen
	return tea.Tick(s.interval, func(t time.Time) tea.Msg {
		return frameMsg{gen: gen, at: t}
	})
}

// fire runs the pending callback if msg belongs to the current request.
func (s *Scheduler) fire(msg frameMsg) {
	if msg.gen != s.gen || s.fn == nil {
		return
	}
	fn := s.fn
	s.fn = nil
	fn(msg.at)
}
