// Package bbolt provides a BBolt-backed credstore.Repository.
package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionkeep/credstore"
)

var bucketName = []byte("credentials")

// Store implements credstore.Repository backed by a BBolt database. Keys
// are "<principal>:<config>:<kind>", so a cursor seek on "<principal>:"
// lists one principal's credentials.
type Store struct {
	db *bbolt.DB
}

var _ credstore.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating credentials bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(ref credstore.Ref) []byte {
	return []byte(ref.String())
}

func (s *Store) Put(_ context.Context, rec *credstore.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(recordKey(rec.Ref), data)
	})
}

func (s *Store) Get(_ context.Context, ref credstore.Ref) (*credstore.Record, error) {
	var rec credstore.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get(recordKey(ref))
		if data == nil {
			return fmt.Errorf("%s: %w", ref, credstore.ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(_ context.Context, ref credstore.Ref) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(recordKey(ref)) == nil {
			return fmt.Errorf("%s: %w", ref, credstore.ErrNotFound)
		}
		return b.Delete(recordKey(ref))
	})
}

func (s *Store) List(_ context.Context, principalID int64) ([]credstore.Ref, error) {
	var refs []credstore.Ref
	prefix := []byte(fmt.Sprintf("%d:", principalID))
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec credstore.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			refs = append(refs, rec.Ref)
		}
		return nil
	})
	return refs, err
}
