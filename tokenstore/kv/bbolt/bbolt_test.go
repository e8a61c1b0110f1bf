package bbolt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionkeep/tokenstore/kv/kvtest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestBoltBackend(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b, err := NewFromFile(filepath.Join(t.TempDir(), "cache.db"), nil, WithClock(clock.Now))
	require.NoError(t, err)
	defer b.Close()

	kvtest.Run(t, b, clock.Advance)
}

func TestBoltBackendPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	b, err := NewFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, b.Close())

	b2, err := NewFromFile(path, nil)
	require.NoError(t, err)
	defer b2.Close()
	got, ok, err := b2.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), got)
}

func TestBoltBackendEmptyValue(t *testing.T) {
	b, err := NewFromFile(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Set(ctx, "empty", nil, time.Minute))
	got, ok, err := b.Get(ctx, "empty")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, got)
}
