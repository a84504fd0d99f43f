package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-timeline/internal/domain"
	"github.com/couchcryptid/storm-data-timeline/internal/observability"
)

// Fetcher returns the full incident collection from a snapshot source.
type Fetcher interface {
	FetchIncidents(ctx context.Context) ([]domain.Incident, error)
}

// SnapshotSink receives whole collections and load failures.
type SnapshotSink interface {
	Replace(ctx context.Context, incidents []domain.Incident) error
	Fail(ctx context.Context, cause error) error
}

// SnapshotConfig tunes a Snapshotter.
type SnapshotConfig struct {
	// Source labels metrics and logs, e.g. "query" or "file".
	Source   string
	Attempts int
	// Refresh reloads the collection on this interval. Zero loads once.
	Refresh time.Duration
	Clock   clockwork.Clock
}

// Snapshotter loads a complete collection from a Fetcher into the session,
// retrying with backoff, and optionally refreshes it on an interval.
type Snapshotter struct {
	fetcher Fetcher
	sink    SnapshotSink
	cfg     SnapshotConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSnapshotter creates a Snapshotter. Attempts below one are treated as one.
func NewSnapshotter(f Fetcher, sink SnapshotSink, cfg SnapshotConfig, logger *slog.Logger, metrics *observability.Metrics) *Snapshotter {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Snapshotter{fetcher: f, sink: sink, cfg: cfg, logger: logger, metrics: metrics}
}

// Run performs the initial load and then refreshes until ctx is cancelled.
// Load failures are reported to the sink, never returned.
func (s *Snapshotter) Run(ctx context.Context) error {
	s.logger.Info("snapshot loader started", "source", s.cfg.Source, "refresh", s.cfg.Refresh)
	s.loadAndReport(ctx)

	if s.cfg.Refresh <= 0 {
		return nil
	}
	ticker := s.cfg.Clock.NewTicker(s.cfg.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshot loader stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.loadAndReport(ctx)
		}
	}
}

func (s *Snapshotter) loadAndReport(ctx context.Context) {
	if err := s.Load(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("snapshot load failed", "source", s.cfg.Source, "error", err)
	}
}

// Load fetches with retry and replaces the session's collection. After the
// last failed attempt the error is passed to the sink's Fail and returned.
func (s *Snapshotter) Load(ctx context.Context) error {
	incidents, err := s.fetchWithRetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if failErr := s.sink.Fail(ctx, err); failErr != nil {
			return fmt.Errorf("report load failure: %w", failErr)
		}
		return err
	}
	if err := s.sink.Replace(ctx, incidents); err != nil {
		return fmt.Errorf("replace incidents: %w", err)
	}
	s.logger.Info("snapshot loaded", "source", s.cfg.Source, "incidents", len(incidents))
	return nil
}

func (s *Snapshotter) fetchWithRetry(ctx context.Context) ([]domain.Incident, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		start := s.cfg.Clock.Now()
		incidents, err := s.fetcher.FetchIncidents(ctx)
		s.metrics.SourceDuration.WithLabelValues(s.cfg.Source).Observe(s.cfg.Clock.Since(start).Seconds())
		if err == nil {
			s.metrics.SourceLoads.WithLabelValues(s.cfg.Source, "success").Inc()
			return incidents, nil
		}
		s.metrics.SourceLoads.WithLabelValues(s.cfg.Source, "error").Inc()
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == s.cfg.Attempts {
			break
		}
		s.logger.Warn("fetch incidents failed, retrying",
			"source", s.cfg.Source,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
	return nil, fmt.Errorf("fetch incidents after %d attempts: %w", s.cfg.Attempts, lastErr)
}
