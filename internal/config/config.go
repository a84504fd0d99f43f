package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-data-timeline/internal/domain"
)

// Record sources.
const (
	SourceFile  = "file"
	SourceQuery = "query"
	SourceKafka = "kafka"
)

// Preference backends.
const (
	PrefsSQLite = "sqlite"
	PrefsRedis  = "redis"
	PrefsNone   = "none"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Timeline range. Week 0 starts at Range.Epoch.
	Range         domain.Range
	FrameInterval time.Duration

	Source          string
	FixturePath     string
	RefreshInterval time.Duration
	LoadAttempts    int

	// Hosted SQL query service.
	QueryURL      string
	QueryToken    string
	QueryDatabase string
	QueryTable    string
	QueryTimeout  time.Duration

	// Kafka ingest and week-change publishing.
	KafkaBrokers        []string
	KafkaSourceTopic    string
	KafkaGroupID        string
	KafkaSelectionTopic string
	BatchSize           int
	BatchFlushInterval  time.Duration

	PrefsBackend string
	PrefsPath    string
	RedisAddr    string

	// WSCommandRate is the number of inbound WebSocket commands accepted per
	// second per client.
	WSCommandRate float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	r, err := domain.NewRange(
		sharedcfg.EnvOrDefault("TIMELINE_START_DATE", "2020-01-01"),
		sharedcfg.EnvOrDefault("TIMELINE_END_DATE", "2024-12-31"),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMELINE_START_DATE/TIMELINE_END_DATE: %w", err)
	}

	frameInterval, err := parsePositiveDuration("FRAME_INTERVAL", "16ms")
	if err != nil {
		return nil, err
	}
	queryTimeout, err := parsePositiveDuration("QUERY_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseRefreshInterval()
	if err != nil {
		return nil, err
	}
	loadAttempts, err := parseLoadAttempts()
	if err != nil {
		return nil, err
	}
	wsRate, err := parseCommandRate()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Range:         r,
		FrameInterval: frameInterval,

		Source:          strings.ToLower(sharedcfg.EnvOrDefault("SOURCE", SourceFile)),
		FixturePath:     sharedcfg.EnvOrDefault("FIXTURE_PATH", "data/incidents.json"),
		RefreshInterval: refreshInterval,
		LoadAttempts:    loadAttempts,

		QueryURL:      sharedcfg.EnvOrDefault("QUERY_URL", "https://api.motherduck.com/v1/query"),
		QueryToken:    os.Getenv("QUERY_TOKEN"),
		QueryDatabase: sharedcfg.EnvOrDefault("QUERY_DATABASE", "storm_data"),
		QueryTable:    sharedcfg.EnvOrDefault("QUERY_TABLE", "incidents"),
		QueryTimeout:  queryTimeout,

		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:    sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "transformed-weather-data"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-data-timeline"),
		KafkaSelectionTopic: os.Getenv("KAFKA_SELECTION_TOPIC"),
		BatchSize:           batchSize,
		BatchFlushInterval:  flushInterval,

		PrefsBackend: strings.ToLower(sharedcfg.EnvOrDefault("PREFS_BACKEND", PrefsSQLite)),
		PrefsPath:    sharedcfg.EnvOrDefault("PREFS_PATH", "data/prefs.db"),
		RedisAddr:    sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),

		WSCommandRate: wsRate,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KafkaEnabled reports whether any Kafka client is needed.
func (c *Config) KafkaEnabled() bool {
	return c.Source == SourceKafka || c.KafkaSelectionTopic != ""
}

func (c *Config) validate() error {
	switch c.Source {
	case SourceFile:
		if c.FixturePath == "" {
			return errors.New("FIXTURE_PATH is required when SOURCE is file")
		}
	case SourceQuery:
		if _, err := url.ParseRequestURI(c.QueryURL); err != nil {
			return fmt.Errorf("invalid QUERY_URL: %w", err)
		}
		if c.QueryToken == "" {
			return errors.New("QUERY_TOKEN is required when SOURCE is query")
		}
		if c.QueryTable == "" {
			return errors.New("QUERY_TABLE is required when SOURCE is query")
		}
	case SourceKafka:
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required when SOURCE is kafka")
		}
	default:
		return fmt.Errorf("invalid SOURCE %q: must be file, query, or kafka", c.Source)
	}

	if c.KafkaEnabled() && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

	switch c.PrefsBackend {
	case PrefsSQLite:
		if c.PrefsPath == "" {
			return errors.New("PREFS_PATH is required when PREFS_BACKEND is sqlite")
		}
	case PrefsRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when PREFS_BACKEND is redis")
		}
	case PrefsNone:
	default:
		return fmt.Errorf("invalid PREFS_BACKEND %q: must be sqlite, redis, or none", c.PrefsBackend)
	}
	return nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

// parseRefreshInterval reads REFRESH_INTERVAL. Zero disables periodic reloads.
func parseRefreshInterval() (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault("REFRESH_INTERVAL", "0s"))
	if err != nil || d < 0 {
		return 0, errors.New("invalid REFRESH_INTERVAL: must be zero or a positive duration")
	}
	return d, nil
}

func parseLoadAttempts() (int, error) {
	s := os.Getenv("LOAD_ATTEMPTS")
	if s == "" {
		return 3, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 20 {
		return 0, errors.New("invalid LOAD_ATTEMPTS: must be 1-20")
	}
	return n, nil
}

func parseCommandRate() (float64, error) {
	s := os.Getenv("WS_COMMAND_RATE")
	if s == "" {
		return 20, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, errors.New("invalid WS_COMMAND_RATE: must be a positive number")
	}
	return f, nil
}
