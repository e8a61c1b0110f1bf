// Package memory provides an in-process kv.Backend. It honours TTLs but is
// visible only to the current process, so it suits tests and single-worker
// deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jmcleod/sessionkeep/tokenstore/kv"
)

type item struct {
	value     []byte
	expiresAt time.Time
}

// Backend is a thread-safe in-memory kv.Backend.
type Backend struct {
	mu   sync.RWMutex
	data map[string]item
	now  func() time.Time
}

var (
	_ kv.Backend = (*Backend)(nil)
	_ kv.Sweeper = (*Backend)(nil)
)

// Option configures a Backend.
type Option func(*Backend)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// New creates an empty Backend.
func New(opts ...Option) *Backend {
	b := &Backend{data: make(map[string]item), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	it, ok := b.data[key]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !b.now().Before(it.expiresAt) {
		b.mu.Lock()
		if cur, ok := b.data[key]; ok && !b.now().Before(cur.expiresAt) {
			delete(b.data, key)
		}
		b.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return b.Delete(context.Background(), key)
	}
	b.mu.Lock()
	b.data[key] = item{value: append([]byte(nil), value...), expiresAt: b.now().Add(ttl)}
	b.mu.Unlock()
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
	return nil
}

// Sweep removes every expired value and returns how many were removed.
func (b *Backend) Sweep(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	n := 0
	for k, it := range b.data {
		if !now.Before(it.expiresAt) {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}
