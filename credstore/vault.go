package credstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cipher seals and opens secrets. *secret.Cipher satisfies it.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// Credential is a revealed credential. It must not outlive the request
// that needed it.
type Credential struct {
	Name   string
	Secret string
}

// Vault encrypts credentials on the way into a Repository and decrypts them
// on the way out.
type Vault struct {
	repo   Repository
	cipher Cipher
	now    func() time.Time
}

// NewVault returns a Vault over repo using cipher.
func NewVault(repo Repository, cipher Cipher) *Vault {
	return &Vault{repo: repo, cipher: cipher, now: time.Now}
}

// Save encrypts secret and stores it under ref, replacing any previous
// value. Encryption failures are returned and nothing is written.
func (v *Vault) Save(ctx context.Context, ref Ref, name, secret string) error {
	if _, err := ParseKind(string(ref.Kind)); err != nil {
		return err
	}
	ciphertext, err := v.cipher.Encrypt(secret)
	if err != nil {
		return err
	}
	rec := &Record{
		ID:         uuid.NewString(),
		Ref:        ref,
		Name:       name,
		Ciphertext: ciphertext,
		UpdatedAt:  v.now().UTC(),
	}
	if err := v.repo.Put(ctx, rec); err != nil {
		return fmt.Errorf("storing credential %s: %w", ref, err)
	}
	return nil
}

// Reveal loads and decrypts the credential for ref. A credential that
// cannot be decrypted is an error; Reveal never returns an empty secret in
// its place.
func (v *Vault) Reveal(ctx context.Context, ref Ref) (Credential, error) {
	rec, err := v.repo.Get(ctx, ref)
	if err != nil {
		return Credential{}, err
	}
	plain, err := v.cipher.Decrypt(rec.Ciphertext)
	if err != nil {
		return Credential{}, fmt.Errorf("credential %s: %w", ref, err)
	}
	return Credential{Name: rec.Name, Secret: plain}, nil
}

// Remove deletes the credential for ref.
func (v *Vault) Remove(ctx context.Context, ref Ref) error {
	return v.repo.Delete(ctx, ref)
}

// List returns the refs stored for a principal.
func (v *Vault) List(ctx context.Context, principalID int64) ([]Ref, error) {
	return v.repo.List(ctx, principalID)
}
