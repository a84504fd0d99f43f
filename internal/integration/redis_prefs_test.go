//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-timeline/internal/adapter/prefs"
	"github.com/couchcryptid/storm-data-timeline/internal/playback"
)

func TestRedisSpeedStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store := prefs.NewRedisStore(startRedis(ctx, t))
	defer store.Close()
	require.NoError(t, store.Ping(ctx))

	_, ok, err := store.LoadSpeed(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "nothing saved yet")
	assert.Equal(t, playback.DefaultSpeed, playback.RestoreSpeed(ctx, store, discardLogger()))

	require.NoError(t, store.SaveSpeed(ctx, 16))
	speed, ok, err := store.LoadSpeed(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 16, speed)
	assert.Equal(t, playback.Speed(16), playback.RestoreSpeed(ctx, store, discardLogger()))
}
