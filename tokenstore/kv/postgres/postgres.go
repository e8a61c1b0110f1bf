// Package postgres implements kv.Backend on a PostgreSQL table, which makes
// cached tokens visible to every worker process and host sharing the
// database.
//
// Expiry is computed from the database clock so that workers with skewed
// clocks agree on when a value lapses.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/sessionkeep/tokenstore/kv"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the token_cache table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// Backend implements kv.Backend backed by PostgreSQL.
type Backend struct {
	pool *pgxpool.Pool
}

var (
	_ kv.Backend = (*Backend)(nil)
	_ kv.Sweeper = (*Backend)(nil)
)

// New returns a Backend using the given pool. The schema must exist.
func New(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

// NewFromDSN connects, ensures the schema and returns a Backend.
func NewFromDSN(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool so other components can share it.
func (b *Backend) Pool() *pgxpool.Pool {
	return b.pool
}

// Close closes the underlying connection pool.
func (b *Backend) Close() {
	b.pool.Close()
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.pool.QueryRow(ctx,
		`SELECT value FROM token_cache WHERE cache_key = $1 AND expires_at > now()`,
		key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return b.Delete(ctx, key)
	}
	_, err := b.pool.Exec(ctx,
		`INSERT INTO token_cache (cache_key, value, expires_at)
		 VALUES ($1, $2, now() + $3::double precision * interval '1 millisecond')
		 ON CONFLICT (cache_key)
		 DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, float64(ttl.Milliseconds()))
	return err
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM token_cache WHERE cache_key = $1`, key)
	return err
}

// Sweep deletes expired rows and returns how many were removed.
func (b *Backend) Sweep(ctx context.Context) (int, error) {
	tag, err := b.pool.Exec(ctx, `DELETE FROM token_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
