package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_timeline"

// Metrics holds the Prometheus counters, histograms, and gauges for the timeline service.
type Metrics struct {
	// Bucketing metrics, describing the current index.
	IndexRebuilds        prometheus.Counter
	IndexRebuildDuration prometheus.Histogram
	IndexedRecords       prometheus.Gauge
	DroppedRecords       prometheus.Gauge
	IndexedWeeks         prometheus.Gauge

	// Playback metrics.
	PlaybackTicks   prometheus.Counter
	WeekChanges     prometheus.Counter
	PlaybackPlaying prometheus.Gauge
	PlaybackSpeed   prometheus.Gauge

	// Kafka ingest metrics.
	MessagesConsumed prometheus.Counter
	TransformErrors  prometheus.Counter
	PipelineRunning  prometheus.Gauge
	BatchSize        prometheus.Histogram
	BatchDuration    prometheus.Histogram

	// Snapshot source metrics.
	SourceLoads    *prometheus.CounterVec // labels: source={query,file}, outcome={success,error}
	SourceDuration *prometheus.HistogramVec

	// Outbound notification metrics.
	WebSocketClients     prometheus.Gauge
	WeekChangesPublished *prometheus.CounterVec // labels: outcome={success,error,dropped}
}

// NewMetrics creates and registers all timeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.IndexRebuilds,
		m.IndexRebuildDuration,
		m.IndexedRecords,
		m.DroppedRecords,
		m.IndexedWeeks,
		m.PlaybackTicks,
		m.WeekChanges,
		m.PlaybackPlaying,
		m.PlaybackSpeed,
		m.MessagesConsumed,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchDuration,
		m.SourceLoads,
		m.SourceDuration,
		m.WebSocketClients,
		m.WeekChangesPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IndexRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Total weekly index rebuilds.",
		}),
		IndexRebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Duration of a full weekly index rebuild.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		IndexedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_records",
			Help:      "Records placed in a weekly bucket by the last rebuild.",
		}),
		DroppedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dropped_records",
			Help:      "Records excluded by the last rebuild (unparseable or pre-epoch timestamp).",
		}),
		IndexedWeeks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_weeks",
			Help:      "Non-empty weeks in the current index.",
		}),
		PlaybackTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_ticks_total",
			Help:      "Clock ticks handled while playing.",
		}),
		WeekChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "week_changes_total",
			Help:      "Selected week changes written by the playback controller.",
		}),
		PlaybackPlaying: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_playing",
			Help:      "1 while playback is running, 0 when paused.",
		}),
		PlaybackSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_speed",
			Help:      "Current playback speed multiplier (weeks per second).",
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total source messages that could not be decoded.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the Kafka ingest pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Time to decode a batch and hand it to the session.",
			Buckets:   prometheus.DefBuckets,
		}),
		SourceLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_loads_total",
			Help:      "Snapshot loads by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_load_duration_seconds",
			Help:      "Duration of a snapshot fetch in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		WebSocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}),
		WeekChangesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "week_changes_published_total",
			Help:      "Week change events handed to the Kafka sink by outcome.",
		}, []string{"outcome"}),
	}
}
