// Package postgres implements credstore.Repository backed by PostgreSQL.
//
// The ciphertext column is TEXT: encrypted secrets are text-safe and are
// stored verbatim.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/sessionkeep/credstore"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the credentials table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// Store implements credstore.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ credstore.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Put(ctx context.Context, rec *credstore.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (principal_id, config_id, kind, id, name, ciphertext, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (principal_id, config_id, kind)
		 DO UPDATE SET id = $4, name = $5, ciphertext = $6, updated_at = $7`,
		rec.Ref.PrincipalID, rec.Ref.ConfigID, string(rec.Ref.Kind),
		rec.ID, rec.Name, rec.Ciphertext, rec.UpdatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, ref credstore.Ref) (*credstore.Record, error) {
	rec := credstore.Record{Ref: ref}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, ciphertext, updated_at
		 FROM credentials WHERE principal_id = $1 AND config_id = $2 AND kind = $3`,
		ref.PrincipalID, ref.ConfigID, string(ref.Kind)).Scan(
		&rec.ID, &rec.Name, &rec.Ciphertext, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", ref, credstore.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, ref credstore.Ref) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM credentials WHERE principal_id = $1 AND config_id = $2 AND kind = $3`,
		ref.PrincipalID, ref.ConfigID, string(ref.Kind))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", ref, credstore.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, principalID int64) ([]credstore.Ref, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT config_id, kind FROM credentials WHERE principal_id = $1 ORDER BY config_id, kind`,
		principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []credstore.Ref
	for rows.Next() {
		ref := credstore.Ref{PrincipalID: principalID}
		var kind string
		if err := rows.Scan(&ref.ConfigID, &kind); err != nil {
			return nil, err
		}
		ref.Kind = credstore.Kind(kind)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
