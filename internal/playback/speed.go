package playback

import (
	"context"
	"log/slog"
	"strconv"
)

// Speed is a playback multiplier in weeks per second. Valid speeds form the
// closed cycle 1, 2, 4, 8, 16, 32.
type Speed int

// Speed bounds.
const (
	DefaultSpeed Speed = 1
	MaxSpeed     Speed = 32
)

// Next doubles the speed, wrapping from MaxSpeed back to DefaultSpeed.
func (s Speed) Next() Speed {
	if !s.Valid() || s >= MaxSpeed {
		return DefaultSpeed
	}
	return s * 2
}

// Valid reports whether s is a power of two between 1 and 32.
func (s Speed) Valid() bool {
	return s >= DefaultSpeed && s <= MaxSpeed && s&(s-1) == 0
}

func (s Speed) String() string { return strconv.Itoa(int(s)) + "x" }

// SpeedOrDefault converts a stored integer into a Speed, falling back to
// DefaultSpeed for anything outside the cycle.
func SpeedOrDefault(n int) Speed {
	if s := Speed(n); s.Valid() {
		return s
	}
	return DefaultSpeed
}

// SpeedStore persists the chosen speed between sessions.
type SpeedStore interface {
	// LoadSpeed returns the stored speed and whether one was stored.
	LoadSpeed(ctx context.Context) (int, bool, error)
	SaveSpeed(ctx context.Context, speed int) error
}

// RestoreSpeed reads the persisted speed. Absence, read errors, and values
// outside the cycle all yield DefaultSpeed.
func RestoreSpeed(ctx context.Context, store SpeedStore, logger *slog.Logger) Speed {
	if store == nil {
		return DefaultSpeed
	}
	n, ok, err := store.LoadSpeed(ctx)
	if err != nil {
		logger.Warn("restore playback speed failed", "error", err)
		return DefaultSpeed
	}
	if !ok {
		return DefaultSpeed
	}
	s := SpeedOrDefault(n)
	if int(s) != n {
		logger.Warn("ignoring stored playback speed outside the cycle", "stored", n)
	}
	return s
}
