package secret

import "errors"

var (
	// ErrKeyUnavailable indicates neither a usable encryption key nor an
	// application secret was configured.
	ErrKeyUnavailable = errors.New("no encryption key or application secret configured")
	// ErrKeyMismatch indicates the ciphertext did not authenticate under the
	// active key. The key has most likely changed since the secret was
	// stored; the secret must be re-entered.
	ErrKeyMismatch = errors.New("secret was encrypted with a different key; the encryption key has likely been rotated, ask the user to re-enter the secret")
	// ErrMalformed indicates the value is not an encrypted secret at all.
	ErrMalformed = errors.New("malformed encrypted secret")
	// ErrUnsupportedVersion indicates a version prefix this build cannot read.
	ErrUnsupportedVersion = errors.New("unsupported encrypted secret version")
)

// EncryptionError is returned when a secret cannot be sealed. It is never
// recoverable by retrying.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return "encrypting secret: " + e.Err.Error()
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// DecryptionError is returned when a stored secret cannot be opened. Use
// errors.Is(err, ErrKeyMismatch) to tell a rotated key from corrupt input.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return "decrypting secret: " + e.Err.Error()
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}
