package modelcache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamkit.dev/core/internal/modelcache"
)

func TestCacheLoadsOnceAcrossRepeatedAcquires(t *testing.T) {
	var loads atomic.Int32
	c := modelcache.New(50*time.Millisecond, func(ctx context.Context, key modelcache.Key) (any, error) {
		loads.Add(1)
		return "loaded-model", nil
	})

	key := modelcache.Key{ModelPath: "/models/whisper-base.bin", Device: "cuda", DeviceIndex: 0}

	m1, err := c.Acquire(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, "loaded-model", m1)

	m2, err := c.Acquire(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, "loaded-model", m2)
	require.Equal(t, int32(1), loads.Load())
	require.Equal(t, 1, c.Len())

	c.Release(key)
	c.Release(key)
	require.Equal(t, 1, c.Len())

	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCacheReacquireBeforeEvictionCancelsTimer(t *testing.T) {
	var loads atomic.Int32
	c := modelcache.New(30*time.Millisecond, func(ctx context.Context, key modelcache.Key) (any, error) {
		loads.Add(1)
		return "m", nil
	})
	key := modelcache.Key{ModelPath: "/m.bin", Device: "cpu"}

	_, err := c.Acquire(context.Background(), key)
	require.NoError(t, err)
	c.Release(key)

	_, err = c.Acquire(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, int32(1), loads.Load())

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, c.Len())
}
