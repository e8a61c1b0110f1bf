// Package memory provides a thread-safe in-memory credstore.Repository.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/jmcleod/sessionkeep/credstore"
)

// Repository is a thread-safe in-memory implementation of credstore.Repository.
// Suitable for testing and single-process use cases.
type Repository struct {
	mu   sync.RWMutex
	data map[credstore.Ref]credstore.Record
}

var _ credstore.Repository = (*Repository)(nil)

// NewRepository creates a new empty Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[credstore.Ref]credstore.Record)}
}

func (r *Repository) Put(_ context.Context, rec *credstore.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[rec.Ref] = *rec
	return nil
}

func (r *Repository) Get(_ context.Context, ref credstore.Ref) (*credstore.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[ref]
	if !ok {
		return nil, credstore.ErrNotFound
	}
	return &rec, nil
}

func (r *Repository) Delete(_ context.Context, ref credstore.Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[ref]; !ok {
		return credstore.ErrNotFound
	}
	delete(r.data, ref)
	return nil
}

func (r *Repository) List(_ context.Context, principalID int64) ([]credstore.Ref, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var refs []credstore.Ref
	for ref := range r.data {
		if ref.PrincipalID == principalID {
			refs = append(refs, ref)
		}
	}
	slices.SortFunc(refs, func(a, b credstore.Ref) int {
		return cmp.Or(cmp.Compare(a.ConfigID, b.ConfigID), cmp.Compare(a.Kind, b.Kind))
	})
	return refs, nil
}
