// Package kvtest holds the behaviour every kv.Backend must share.
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionkeep/tokenstore/kv"
)

// Run exercises b. wait must let at least d elapse from the backend's point
// of view, by advancing a fake clock or by sleeping.
func Run(t *testing.T, b kv.Backend, wait func(d time.Duration)) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetGet", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "k1", []byte("v1"), time.Minute))
		got, ok, err := b.Get(ctx, "k1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v1"), got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, ok, err := b.Get(ctx, "no-such-key")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "k2", []byte("first"), time.Minute))
		require.NoError(t, b.Set(ctx, "k2", []byte("second"), time.Minute))
		got, ok, err := b.Get(ctx, "k2")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("second"), got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "k3", []byte("v"), time.Minute))
		require.NoError(t, b.Delete(ctx, "k3"))
		_, ok, err := b.Get(ctx, "k3")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		require.NoError(t, b.Delete(ctx, "never-existed"))
	})

	t.Run("NonPositiveTTLDeletes", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "k4", []byte("v"), time.Minute))
		require.NoError(t, b.Set(ctx, "k4", []byte("v"), 0))
		_, ok, err := b.Get(ctx, "k4")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "short", []byte("v"), time.Second))
		require.NoError(t, b.Set(ctx, "long", []byte("v"), time.Hour))
		wait(1500 * time.Millisecond)

		_, ok, err := b.Get(ctx, "short")
		require.NoError(t, err)
		require.False(t, ok, "value must be unreadable once its TTL elapses")

		_, ok, err = b.Get(ctx, "long")
		require.NoError(t, err)
		require.True(t, ok)
	})

	if sw, ok := b.(kv.Sweeper); ok {
		t.Run("Sweep", func(t *testing.T) {
			require.NoError(t, b.Set(ctx, "sweep-me", []byte("v"), time.Second))
			wait(1500 * time.Millisecond)
			n, err := sw.Sweep(ctx)
			require.NoError(t, err)
			require.GreaterOrEqual(t, n, 1)
		})
	}
}
