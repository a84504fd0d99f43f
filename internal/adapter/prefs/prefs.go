// Package prefs persists user preferences such as the playback speed.
package prefs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/couchcryptid/storm-data-timeline/internal/config"
)

// SpeedKey is the preference key holding the playback speed.
const SpeedKey = "playback-speed"

func parseSpeed(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse stored %s %q: %w", SpeedKey, value, err)
	}
	return n, nil
}

// Store is a preference backend usable as a playback.SpeedStore.
type Store interface {
	LoadSpeed(ctx context.Context) (int, bool, error)
	SaveSpeed(ctx context.Context, speed int) error
	Ping(ctx context.Context) error
	Close() error
}

// Checker reports a Store as a readiness check.
type Checker struct {
	Store Store
}

// CheckReadiness fails while the store cannot be reached.
func (c Checker) CheckReadiness(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return fmt.Errorf("preference store: %w", err)
	}
	return nil
}

// Open returns the backend selected by cfg.PrefsBackend, or nil when
// persistence is disabled.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.PrefsBackend {
	case config.PrefsSQLite:
		s, err := NewSQLiteStore(cfg.PrefsPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.PrefsRedis:
		return NewRedisStore(cfg.RedisAddr), nil
	case config.PrefsNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown prefs backend %q", cfg.PrefsBackend)
	}
}
