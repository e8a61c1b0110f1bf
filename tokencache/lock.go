package tokencache

import (
	"context"
	"errors"
	"fmt"
)

// ErrLockTimeout is returned when a caller stops waiting for a per-key lock.
// It wraps the context error that ended the wait.
var ErrLockTimeout = errors.New("timed out waiting for sign-in lock")

// KeyLock is a mutex whose acquisition honours context cancellation.
type KeyLock struct {
	sem chan struct{}
}

func newKeyLock() *KeyLock {
	return &KeyLock{sem: make(chan struct{}, 1)}
}

// Lock blocks until the lock is held or ctx is done. On failure the lock is
// not held and the caller must not call Unlock.
func (l *KeyLock) Lock(ctx context.Context) error {
	// An uncontended lock is taken even when ctx has already expired.
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	}
}

// TryLock acquires the lock only if it is free.
func (l *KeyLock) TryLock() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the lock. Unlocking a free lock panics, as with sync.Mutex.
func (l *KeyLock) Unlock() {
	select {
	case <-l.sem:
	default:
		panic("tokencache: unlock of unlocked KeyLock")
	}
}
