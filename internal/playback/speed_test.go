package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeed_Valid(t *testing.T) {
	for _, s := range []Speed{1, 2, 4, 8, 16, 32} {
		assert.True(t, s.Valid(), "%d", s)
	}
	for _, s := range []Speed{0, -1, 3, 6, 64} {
		assert.False(t, s.Valid(), "%d", s)
	}
}

func TestSpeed_NextFromInvalidResets(t *testing.T) {
	assert.Equal(t, DefaultSpeed, Speed(3).Next())
	assert.Equal(t, DefaultSpeed, Speed(64).Next())
}

func TestSpeed_String(t *testing.T) {
	assert.Equal(t, "16x", Speed(16).String())
}

type fakeSpeedStore struct {
	speed int
	ok    bool
	err   error
}

func (f *fakeSpeedStore) LoadSpeed(context.Context) (int, bool, error) { return f.speed, f.ok, f.err }
func (f *fakeSpeedStore) SaveSpeed(_ context.Context, s int) error    { f.speed, f.ok = s, true; return nil }

func TestRestoreSpeed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name  string
		store SpeedStore
		want  Speed
	}{
		{"nil store", nil, DefaultSpeed},
		{"absent", &fakeSpeedStore{}, DefaultSpeed},
		{"stored", &fakeSpeedStore{speed: 8, ok: true}, 8},
		{"outside cycle", &fakeSpeedStore{speed: 5, ok: true}, DefaultSpeed},
		{"read error", &fakeSpeedStore{err: errors.New("disk gone")}, DefaultSpeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RestoreSpeed(context.Background(), tt.store, logger))
		})
	}
}
