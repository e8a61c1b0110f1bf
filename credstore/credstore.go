// Package credstore persists the long-lived credentials used to sign in to
// the analytics platform. Values are always written encrypted by a
// secret.Cipher; a Repository only ever sees ciphertext.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no credential is stored for a Ref.
var ErrNotFound = errors.New("credential not found")

// ErrUnknownKind is returned for a Kind outside the supported set.
var ErrUnknownKind = errors.New("unknown credential kind")

// Kind names the sort of secret a record holds.
type Kind string

const (
	KindPATSecret    Kind = "pat_secret"
	KindPassword     Kind = "password"
	KindClientSecret Kind = "client_secret"
)

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPATSecret, KindPassword, KindClientSecret:
		return k, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownKind)
	}
}

// Ref addresses one stored credential.
type Ref struct {
	PrincipalID int64 `json:"principal_id"`
	ConfigID    int64 `json:"config_id"`
	Kind        Kind  `json:"kind"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%d:%d:%s", r.PrincipalID, r.ConfigID, r.Kind)
}

// Record is a stored credential. Ciphertext is an opaque value produced by
// secret.Cipher.Encrypt. Name carries the non-secret half of the credential
// (the PAT name or the username).
type Record struct {
	ID         string    `json:"id"`
	Ref        Ref       `json:"ref"`
	Name       string    `json:"name,omitempty"`
	Ciphertext string    `json:"ciphertext"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Repository stores credential records. Put replaces any record with the
// same Ref.
type Repository interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, ref Ref) (*Record, error)
	Delete(ctx context.Context, ref Ref) error
	List(ctx context.Context, principalID int64) ([]Ref, error)
}
