// Package tokencache holds session tokens for the current process and
// serializes sign-in attempts per cache key.
//
// A Cache is constructed once at startup and passed to whatever needs it.
// Callers that must sign in follow the pattern implemented by GetOrSignIn:
// acquire the key's lock, re-check the cache, sign in only on a genuine miss,
// store the result and release the lock.
package tokencache

import (
	"context"
	"sync"
	"time"
)

// SignInFunc obtains a fresh entry from the analytics platform.
type SignInFunc func(ctx context.Context) (Entry, error)

// Cache is a thread-safe in-process token map with a per-key lock map.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]Entry

	// locksMu guards only the population of locks. It is never held while
	// a KeyLock is being waited on.
	locksMu sync.Mutex
	locks   map[Key]*KeyLock

	buffer time.Duration
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithExpiryBuffer overrides DefaultExpiryBuffer.
func WithExpiryBuffer(d time.Duration) Option {
	return func(c *Cache) {
		c.buffer = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]Entry),
		locks:   make(map[Key]*KeyLock),
		buffer:  DefaultExpiryBuffer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExpiryBuffer returns the safety margin applied by Get.
func (c *Cache) ExpiryBuffer() time.Duration {
	return c.buffer
}

// Get returns the entry for key if it is still usable. An entry inside the
// expiry buffer is evicted and reported as a miss.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if entry.Usable(c.now(), c.buffer) {
		return entry, true
	}

	c.mu.Lock()
	// Only evict what we inspected; a concurrent Set may have replaced it.
	if current, ok := c.entries[key]; ok && current == entry {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return Entry{}, false
}

// Set stores entry under key, replacing any existing entry.
func (c *Cache) Set(key Key, entry Entry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Invalidate removes the entry for key. It is a no-op if there is none.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, usable or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LockFor returns the lock scoped to key, creating it on first use. Every
// call for the same key returns the same *KeyLock.
//
// Locks are never removed, not even by Invalidate: a caller may hold a
// *KeyLock it has not locked yet, and a replacement would admit a second
// sign-in for the key. The map holds one small lock per distinct
// principal, config and auth type seen by the process.
func (c *Cache) LockFor(key Key) *KeyLock {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = newKeyLock()
		c.locks[key] = l
	}
	return l
}

// GetOrSignIn returns the cached entry for key, or calls signIn under the
// key's lock and caches its result. Concurrent callers for the same key
// share a single sign-in. A failed sign-in caches nothing.
func (c *Cache) GetOrSignIn(ctx context.Context, key Key, signIn SignInFunc) (Entry, error) {
	if entry, ok := c.Get(key); ok {
		return entry, nil
	}

	lock := c.LockFor(key)
	if err := lock.Lock(ctx); err != nil {
		return Entry{}, err
	}
	defer lock.Unlock()

	// Another waiter may have signed in while we were blocked.
	if entry, ok := c.Get(key); ok {
		return entry, nil
	}

	entry, err := signIn(ctx)
	if err != nil {
		return Entry{}, err
	}
	c.Set(key, entry)
	return entry, nil
}
