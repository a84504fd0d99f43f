package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-timeline/internal/adapter/fixture"
	httpadapter "github.com/couchcryptid/storm-data-timeline/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-data-timeline/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-timeline/internal/adapter/prefs"
	"github.com/couchcryptid/storm-data-timeline/internal/adapter/query"
	"github.com/couchcryptid/storm-data-timeline/internal/adapter/ws"
	"github.com/couchcryptid/storm-data-timeline/internal/config"
	"github.com/couchcryptid/storm-data-timeline/internal/observability"
	"github.com/couchcryptid/storm-data-timeline/internal/pipeline"
	"github.com/couchcryptid/storm-data-timeline/internal/playback"
	"github.com/couchcryptid/storm-data-timeline/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Speed preference (PREFS_BACKEND=none disables it).
	prefStore, err := prefs.Open(cfg)
	if err != nil {
		logger.Error("failed to open preference store", "error", err)
		os.Exit(1)
	}
	var speeds playback.SpeedStore
	if prefStore != nil {
		speeds = prefStore
		logger.Info("speed persistence enabled", "backend", cfg.PrefsBackend)
	}

	sess := session.New(session.Options{
		Range:         cfg.Range,
		Clock:         clock,
		FrameInterval: cfg.FrameInterval,
		Speed:         playback.RestoreSpeed(ctx, speeds, logger),
		SpeedStore:    speeds,
		Logger:        logger,
		Metrics:       metrics,
	})
	go func() {
		if err := sess.Run(ctx); err != nil {
			logger.Error("session error", "error", err)
		}
	}()

	// Start the record source.
	var reader *kafkaadapter.Reader
	switch cfg.Source {
	case config.SourceKafka:
		reader = kafkaadapter.NewReader(cfg, logger)
		p := pipeline.New(reader, pipeline.NewTransformer(), sess, logger, metrics, cfg.BatchSize)
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	default:
		fetcher, err := newFetcher(cfg, logger)
		if err != nil {
			logger.Error("failed to create record source", "error", err)
			os.Exit(1)
		}
		loader := pipeline.NewSnapshotter(fetcher, sess, pipeline.SnapshotConfig{
			Source:   cfg.Source,
			Attempts: cfg.LoadAttempts,
			Refresh:  cfg.RefreshInterval,
			Clock:    clock,
		}, logger, metrics)
		go func() {
			if err := loader.Run(ctx); err != nil {
				logger.Error("snapshot loader error", "error", err)
			}
		}()
	}

	// Publish week changes to Kafka when a selection topic is configured.
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaSelectionTopic != "" {
		publisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		go func() {
			if err := publisher.Run(ctx); err != nil {
				logger.Error("week change publisher error", "error", err)
			}
		}()
		if _, err := sess.Subscribe(ctx, publisher.Publish); err != nil {
			logger.Error("failed to subscribe publisher", "error", err)
		}
	}

	hub := ws.NewHub(sess, cfg.WSCommandRate, logger, metrics)
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.Error("websocket hub error", "error", err)
		}
	}()

	var checks []sharedobs.ReadinessChecker
	if prefStore != nil {
		checks = append(checks, prefs.Checker{Store: prefStore})
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, sess, hub, logger, checks...)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-sess.Done():
	case <-shutdownCtx.Done():
		logger.Error("session did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if prefStore != nil {
		if err := prefStore.Close(); err != nil {
			logger.Error("preference store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (pipeline.Fetcher, error) {
	switch cfg.Source {
	case config.SourceFile:
		logger.Info("loading incidents from file", "path", cfg.FixturePath)
		return fixture.NewLoader(cfg.FixturePath, logger), nil
	case config.SourceQuery:
		logger.Info("loading incidents from query service", "url", cfg.QueryURL, "table", cfg.QueryTable)
		return query.NewClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported snapshot source %q", cfg.Source)
	}
}
