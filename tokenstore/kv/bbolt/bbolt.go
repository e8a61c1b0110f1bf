// Package bbolt provides a kv.Backend stored in a BBolt file. BBolt holds an
// exclusive file lock, so the cache is shared by everything running inside
// the process that opened it and survives restarts; it is not visible to
// other processes.
package bbolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionkeep/tokenstore/kv"
)

var bucketName = []byte("token_cache")

// Backend implements kv.Backend on a BBolt bucket. Each value is stored as
// an 8-byte big-endian expiry (unix nanoseconds) followed by the payload.
type Backend struct {
	db  *bbolt.DB
	now func() time.Time
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

// New returns a Backend using db, creating the bucket if needed.
func New(db *bbolt.DB, opts ...Option) (*Backend, error) {
	b := &Backend{db: db, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating token cache bucket: %w", err)
	}
	return b, nil
}

// NewFromFile opens a BBolt database at path and returns a Backend on it.
func NewFromFile(path string, options *bbolt.Options, opts ...Option) (*Backend, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	b, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the underlying BBolt database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func encode(value []byte, expiresAt time.Time) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt.UnixNano()))
	copy(buf[8:], value)
	return buf
}

func expired(raw []byte, now time.Time) bool {
	if len(raw) < 8 {
		return true
	}
	return now.UnixNano() >= int64(binary.BigEndian.Uint64(raw[:8]))
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
		stale bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if expired(raw, b.now()) {
			stale = true
			return nil
		}
		// raw is only valid for the life of the transaction.
		value = append([]byte{}, raw[8:]...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if stale {
		err := b.db.Update(func(tx *bbolt.Tx) error {
			bk := tx.Bucket(bucketName)
			if raw := bk.Get([]byte(key)); raw != nil && expired(raw, b.now()) {
				return bk.Delete([]byte(key))
			}
			return nil
		})
		return nil, false, err
	}
	return value, found, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return b.Delete(ctx, key)
	}
	data := encode(value, b.now().Add(ttl))
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

func (b *Backend) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// Sweep removes every expired value and returns how many were removed.
func (b *Backend) Sweep(_ context.Context) (int, error) {
	n := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketName)
		now := b.now()
		var stale [][]byte
		err := bk.ForEach(func(k, v []byte) error {
			if expired(v, now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}
