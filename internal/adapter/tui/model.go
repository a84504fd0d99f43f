// Package tui is a terminal player for the incident timeline.
//
// The Model owns its own selection store, playback controller and weekly
// index, all touched only from Update. Frames come from tea.Tick through
// Scheduler, so playback advances at the same weeks-per-second rate as the
// service.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/couchcryptid/storm-data-timeline/internal/bucket"
	"github.com/couchcryptid/storm-data-timeline/internal/domain"
	"github.com/couchcryptid/storm-data-timeline/internal/observability"
	"github.com/couchcryptid/storm-data-timeline/internal/playback"
	"github.com/couchcryptid/storm-data-timeline/internal/selection"
)

const (
	loadTimeout   = time.Minute
	saveTimeout   = 2 * time.Second
	topCategories = 4
	maxBarWidth   = 72
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	playingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	frameStyle   = lipgloss.NewStyle().Padding(1, 2)
)

// Fetcher loads the full incident collection.
type Fetcher interface {
	FetchIncidents(ctx context.Context) ([]domain.Incident, error)
}

// Options configures a Model.
type Options struct {
	Range         domain.Range
	Fetcher       Fetcher
	Speed         playback.Speed
	SpeedStore    playback.SpeedStore // nil disables persistence
	FrameInterval time.Duration
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

type loadedMsg struct {
	records []domain.Incident
	err     error
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx     context.Context
	rng     domain.Range
	fetcher Fetcher
	speeds  playback.SpeedStore
	logger  *slog.Logger

	store *selection.Store
	sched *Scheduler
	ctrl  *playback.Controller
	index *bucket.Index

	loading bool
	err     error

	keys     keyMap
	help     help.Model
	bar      progress.Model
	showHelp bool
	width    int
}

// New builds a Model. ctx bounds loads and preference writes.
func New(ctx context.Context, opts Options) Model {
	store := selection.NewStore(opts.Range.TotalWeeks())
	sched := NewScheduler(opts.FrameInterval)
	return Model{
		ctx:     ctx,
		rng:     opts.Range,
		fetcher: opts.Fetcher,
		speeds:  opts.SpeedStore,
		logger:  opts.Logger,
		store:   store,
		sched:   sched,
		ctrl:    playback.New(store, sched, opts.Speed, opts.Logger, opts.Metrics),
		index:   bucket.Build(nil, opts.Range.Epoch),
		loading: true,
		keys:    defaultKeys(),
		help:    help.New(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func (m Model) Init() tea.Cmd {
	return m.load()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.handle(msg)
	return m, tea.Batch(cmd, m.sched.Cmd())
}

func (m *Model) handle(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case frameMsg:
		m.sched.fire(msg)
	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.logger.Error("incident load failed", "error", msg.err)
			return nil
		}
		m.err = nil
		m.index = bucket.Build(msg.records, m.rng.Epoch)
		m.logger.Info("incidents loaded", "records", m.index.Len(), "dropped", m.index.Dropped())
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = min(maxBarWidth, max(10, msg.Width-8))
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Close()
		return tea.Quit
	case key.Matches(msg, m.keys.Toggle):
		m.ctrl.Toggle()
	case key.Matches(msg, m.keys.Speed):
		return m.saveSpeed(m.ctrl.CycleSpeed())
	case key.Matches(msg, m.keys.Prev):
		m.ctrl.Scrub(m.store.Selected() - 1)
	case key.Matches(msg, m.keys.Next):
		m.ctrl.Scrub(m.store.Selected() + 1)
	case key.Matches(msg, m.keys.First):
		m.ctrl.Scrub(0)
	case key.Matches(msg, m.keys.Last):
		m.ctrl.Scrub(m.store.TotalWeeks() - 1)
	case key.Matches(msg, m.keys.Reload):
		if !m.loading {
			m.loading = true
			return m.load()
		}
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
	}
	return nil
}

func (m Model) load() tea.Cmd {
	fetcher, ctx := m.fetcher, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()
		records, err := fetcher.FetchIncidents(ctx)
		return loadedMsg{records: records, err: err}
	}
}

func (m Model) saveSpeed(speed playback.Speed) tea.Cmd {
	if m.speeds == nil {
		return nil
	}
	store, ctx, logger := m.speeds, m.ctx, m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, saveTimeout)
		defer cancel()
		if err := store.SaveSpeed(ctx, int(speed)); err != nil {
			logger.Warn("persist playback speed failed", "speed", int(speed), "error", err)
		}
		return nil
	}
}

// State exposes the controller state, mainly for tests.
func (m Model) State() playback.State {
	return m.ctrl.State()
}

// playheadRatio maps the fractional playhead onto [0, 1] across the range.
func playheadRatio(position float64, total int) float64 {
	if total <= 1 {
		return 0
	}
	return min(max(position/float64(total-1), 0), 1)
}

func (m Model) View() string {
	st := m.ctrl.State()
	total := m.store.TotalWeeks()

	var b strings.Builder

	status := pausedStyle.Render("❚❚ PAUSED")
	if st.Playing {
		status = playingStyle.Render("▶ PLAYING")
	}
	fmt.Fprintf(&b, "%s  %s  %s\n\n",
		titleStyle.Render("Storm Timeline"), status, st.Speed.String())

	fmt.Fprintf(&b, "Week %d of %d  %s\n", st.Week+1, total,
		dimStyle.Render("starting "+m.rng.WeekStart(st.Week).Format(domain.DateLayout)))

	b.WriteString(m.bar.ViewAs(playheadRatio(st.Position, total)))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(dimStyle.Render("loading incidents..."))
	case m.err != nil:
		b.WriteString(errorStyle.Render("load failed: " + m.err.Error()))
	default:
		b.WriteString(m.weekLine(st.Week))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))

	return frameStyle.Render(b.String())
}

func (m Model) weekLine(week int) string {
	sum := m.index.Summarize(week)
	if sum.Total == 0 {
		return dimStyle.Render("no incidents this week")
	}
	parts := make([]string, 0, topCategories)
	for _, c := range sum.Top(topCategories) {
		parts = append(parts, fmt.Sprintf("%s %d", c.Category, c.Count))
	}
	return fmt.Sprintf("%d incidents  %s", sum.Total, dimStyle.Render(strings.Join(parts, " · ")))
}
