package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionkeep/tokenstore/kv/kvtest"
)

func TestMemoryBackend(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	kvtest.Run(t, New(WithClock(clock)), advance)
}

func TestMemoryBackendReturnsCopies(t *testing.T) {
	b := New()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, b.Set(ctx, "k", value, time.Minute))
	value[0] = 'X'

	got, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("abc"), got)

	got[0] = 'Y'
	again, _, _ := b.Get(ctx, "k")
	require.Equal(t, []byte("abc"), again)
}
