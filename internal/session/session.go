// Package session runs the timeline engine on a single goroutine.
//
// A Session owns the selected-week store, the playback controller and the
// weekly index. Run executes every command and every frame tick on one loop,
// so none of those components needs a lock. Other goroutines reach them only
// through the methods below.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-timeline/internal/bucket"
	"github.com/couchcryptid/storm-data-timeline/internal/domain"
	"github.com/couchcryptid/storm-data-timeline/internal/frame"
	"github.com/couchcryptid/storm-data-timeline/internal/observability"
	"github.com/couchcryptid/storm-data-timeline/internal/playback"
	"github.com/couchcryptid/storm-data-timeline/internal/selection"
)

// ErrClosed is returned by commands issued after Run has returned.
var ErrClosed = errors.New("session closed")

// Load statuses reported in Snapshot.
const (
	StatusLoading = "loading"
	StatusReady   = "ready"
	StatusError   = "error"
)

const speedSaveTimeout = 2 * time.Second

// Options configures a Session.
type Options struct {
	Range         domain.Range
	Clock         clockwork.Clock
	FrameInterval time.Duration
	Speed         playback.Speed
	// SpeedStore receives every speed change from a background goroutine. Nil
	// disables persistence.
	SpeedStore playback.SpeedStore
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Snapshot is a consistent view of playback and the selected week.
type Snapshot struct {
	Playing    bool      `json:"playing"`
	Speed      int       `json:"speed"`
	Position   float64   `json:"position"`
	Week       int       `json:"week"`
	WeekStart  time.Time `json:"week_start"`
	TotalWeeks int       `json:"total_weeks"`
	Incidents  int       `json:"incidents"`
	Records    int       `json:"records"`
	Dropped    int       `json:"dropped"`
	Status     string    `json:"status"`
	LastError  string    `json:"last_error,omitempty"`
}

// WeekView is the incidents of one week.
type WeekView struct {
	Week      int               `json:"week"`
	WeekStart time.Time         `json:"week_start"`
	Incidents []domain.Incident `json:"incidents"`
}

// Trends is the range-wide view: a per-month category series, the category
// totals across every bucketed record, and the month holding the selected
// week's start.
type Trends struct {
	Months       []bucket.MonthStats `json:"months"`
	Totals       bucket.Counts       `json:"totals"`
	Week         int                 `json:"week"`
	CurrentMonth string              `json:"current_month"`
}

type subscriber struct {
	id int
	fn func(domain.WeekChange)
}

// Session is the timeline engine plus its event loop.
type Session struct {
	rng     domain.Range
	logger  *slog.Logger
	metrics *observability.Metrics

	cmds    chan func()
	done    chan struct{}
	running atomic.Bool

	store *selection.Store
	ctrl  *playback.Controller

	records []domain.Incident
	index   *bucket.Index
	status  string
	lastErr error

	subs   []subscriber
	nextID int

	speedStore playback.SpeedStore
	speedSaves chan playback.Speed
}

// New builds a paused Session on week 0 with an empty index. Call Run to
// start processing commands.
func New(opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Session{
		rng:        opts.Range,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		cmds:       make(chan func()),
		done:       make(chan struct{}),
		store:      selection.NewStore(opts.Range.TotalWeeks()),
		index:      bucket.Build(nil, opts.Range.Epoch),
		status:     StatusLoading,
		speedStore: opts.SpeedStore,
		speedSaves: make(chan playback.Speed, 1),
	}

	driver := frame.NewDriver(clock, opts.FrameInterval, s.post)
	s.ctrl = playback.New(s.store, driver, opts.Speed, opts.Logger, opts.Metrics)
	s.ctrl.OnSpeedChange(s.queueSpeedSave)
	s.ctrl.OnPlayingChange(func(bool) { s.emit(domain.ReasonPlayback) })
	// Registered after the controller so subscribers see its pause on manual
	// changes.
	s.store.Subscribe(func(int) { s.emit(domain.ReasonSelection) })
	return s
}

// Range returns the timeline range. It never changes after New.
func (s *Session) Range() domain.Range { return s.rng }

// Run processes commands and frame ticks until ctx is cancelled. Playback is
// paused on the way out and every later command returns ErrClosed.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer close(s.done)

	if s.speedStore != nil {
		go s.saveSpeeds(ctx)
	}

	s.logger.Info("session started",
		"epoch", s.rng.Epoch.Format(domain.DateLayout),
		"total_weeks", s.rng.TotalWeeks(),
		"speed", int(s.ctrl.State().Speed),
	)
	for {
		select {
		case <-ctx.Done():
			s.ctrl.Close()
			s.logger.Info("session stopped", "week", s.store.Selected())
			return nil
		case fn := <-s.cmds:
			fn()
		}
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// do runs fn on the loop and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the command always runs before the loop can exit.
	<-finished
	return nil
}

// post queues fn without waiting. Used by the frame driver's timer goroutine.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// CheckReadiness reports ready once incidents have been loaded.
func (s *Session) CheckReadiness(ctx context.Context) error {
	var err error
	if doErr := s.do(ctx, func() {
		switch s.status {
		case StatusReady:
		case StatusError:
			err = fmt.Errorf("incident load failed: %w", s.lastErr)
		default:
			err = errors.New("incidents not loaded yet")
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Snapshot returns the current playback and selection state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() { snap = s.snapshot() })
	return snap, err
}

func (s *Session) snapshot() Snapshot {
	st := s.ctrl.State()
	snap := Snapshot{
		Playing:    st.Playing,
		Speed:      int(st.Speed),
		Position:   st.Position,
		Week:       st.Week,
		WeekStart:  s.rng.WeekStart(st.Week),
		TotalWeeks: s.store.TotalWeeks(),
		Incidents:  s.index.Count(st.Week),
		Records:    s.index.Len(),
		Dropped:    s.index.Dropped(),
		Status:     s.status,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// Play starts playback from the selected week.
func (s *Session) Play(ctx context.Context) (Snapshot, error) {
	return s.command(ctx, s.ctrl.Play)
}

// Pause stops playback.
func (s *Session) Pause(ctx context.Context) (Snapshot, error) {
	return s.command(ctx, s.ctrl.Pause)
}

// Toggle flips between playing and paused.
func (s *Session) Toggle(ctx context.Context) (Snapshot, error) {
	return s.command(ctx, s.ctrl.Toggle)
}

// CycleSpeed advances to the next playback speed.
func (s *Session) CycleSpeed(ctx context.Context) (Snapshot, error) {
	return s.command(ctx, func() { s.ctrl.CycleSpeed() })
}

// Scrub selects a week directly, pausing playback. Out-of-range weeks are
// clamped.
func (s *Session) Scrub(ctx context.Context, week int) (Snapshot, error) {
	return s.command(ctx, func() { s.ctrl.Scrub(week) })
}

func (s *Session) command(ctx context.Context, fn func()) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() {
		fn()
		snap = s.snapshot()
	})
	return snap, err
}

// Incidents returns copies of the records bucketed into week, optionally
// filtered by category. Weeks without records yield an empty list.
func (s *Session) Incidents(ctx context.Context, week int, category string) (WeekView, error) {
	var view WeekView
	err := s.do(ctx, func() { view = s.weekView(week, category) })
	return view, err
}

// CurrentIncidents is Incidents for the selected week.
func (s *Session) CurrentIncidents(ctx context.Context, category string) (WeekView, error) {
	var view WeekView
	err := s.do(ctx, func() { view = s.weekView(s.store.Selected(), category) })
	return view, err
}

func (s *Session) weekView(week int, category string) WeekView {
	found := s.index.Filter(week, category)
	out := make([]domain.Incident, len(found))
	for i, inc := range found {
		out[i] = *inc
	}
	return WeekView{Week: week, WeekStart: s.rng.WeekStart(week), Incidents: out}
}

// Summary returns the per-category breakdown of week.
func (s *Session) Summary(ctx context.Context, week int) (bucket.Summary, error) {
	var sum bucket.Summary
	err := s.do(ctx, func() { sum = s.index.Summarize(week) })
	return sum, err
}

// Trends returns the monthly series over the timeline range and the
// range-wide category totals.
func (s *Session) Trends(ctx context.Context) (Trends, error) {
	var tr Trends
	err := s.do(ctx, func() {
		week := s.store.Selected()
		tr = Trends{
			Months:       s.index.Monthly(s.rng.End),
			Totals:       s.index.Totals(),
			Week:         week,
			CurrentMonth: bucket.MonthKey(s.rng.WeekStart(week)),
		}
	})
	return tr, err
}

// Replace swaps the whole record collection and rebuilds the index.
func (s *Session) Replace(ctx context.Context, records []domain.Incident) error {
	records = slices.Clone(records)
	return s.do(ctx, func() {
		s.records = records
		s.rebuild("replace")
	})
}

// LoadBatch appends records and rebuilds the index. It satisfies the Kafka
// pipeline's loader interface.
func (s *Session) LoadBatch(ctx context.Context, records []domain.Incident) error {
	records = slices.Clone(records)
	return s.do(ctx, func() {
		s.records = append(s.records, records...)
		s.rebuild("append")
	})
}

// Fail records a load failure. Before the first successful load it moves the
// session into the error status; afterwards the data already loaded stays
// served and the error is only reported.
func (s *Session) Fail(ctx context.Context, cause error) error {
	return s.do(ctx, func() {
		s.lastErr = cause
		if s.status != StatusReady {
			s.status = StatusError
		}
		s.logger.Error("incident load failed", "error", cause, "status", s.status)
	})
}

// Subscribe registers fn for every WeekChange. fn runs on the session loop
// and must not block. The returned cancel function is safe to call more than
// once and after the session has closed.
func (s *Session) Subscribe(ctx context.Context, fn func(domain.WeekChange)) (cancel func(), err error) {
	var id int
	if err := s.do(ctx, func() {
		s.nextID++
		id = s.nextID
		s.subs = append(s.subs, subscriber{id: id, fn: fn})
	}); err != nil {
		return nil, err
	}
	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		s.post(func() {
			s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
		})
	}, nil
}

func (s *Session) rebuild(cause string) {
	start := time.Now()
	s.index = bucket.Build(s.records, s.rng.Epoch)
	elapsed := time.Since(start)

	s.status = StatusReady
	s.lastErr = nil

	s.metrics.IndexRebuilds.Inc()
	s.metrics.IndexRebuildDuration.Observe(elapsed.Seconds())
	s.metrics.IndexedRecords.Set(float64(s.index.Len()))
	s.metrics.DroppedRecords.Set(float64(s.index.Dropped()))
	s.metrics.IndexedWeeks.Set(float64(len(s.index.Weeks())))

	s.logger.Info("weekly index rebuilt",
		"cause", cause,
		"records", len(s.records),
		"indexed", s.index.Len(),
		"dropped", s.index.Dropped(),
		"duration", elapsed,
	)
	s.emit(domain.ReasonRecords)
}

func (s *Session) emit(reason string) {
	if len(s.subs) == 0 {
		return
	}
	week := s.store.Selected()
	change := domain.NewWeekChange(s.rng, week, s.index.Count(week), s.ctrl.State().Playing, reason)
	for _, sub := range slices.Clone(s.subs) {
		sub.fn(change)
	}
}

// queueSpeedSave hands the newest speed to saveSpeeds, replacing any value
// it has not picked up yet. Only the loop sends, so the send never blocks.
func (s *Session) queueSpeedSave(speed playback.Speed) {
	if s.speedStore == nil {
		return
	}
	select {
	case <-s.speedSaves:
	default:
	}
	s.speedSaves <- speed
}

func (s *Session) saveSpeeds(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case speed := <-s.speedSaves:
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), speedSaveTimeout)
			if err := s.speedStore.SaveSpeed(saveCtx, int(speed)); err != nil {
				s.logger.Warn("persist playback speed failed", "speed", int(speed), "error", err)
			}
			cancel()
		}
	}
}
