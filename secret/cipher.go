// Package secret encrypts long-lived credentials (personal access tokens,
// passwords, OAuth client secrets) for storage in a text column.
//
// Encrypted values have the form "v1:" + base64url(nonce || ciphertext || tag)
// using AES-256-GCM. The key is either a configured 32-byte key or is
// derived from the application secret with PBKDF2-HMAC-SHA256. The salt and
// iteration count are fixed: changing them, or the key, makes every stored
// secret unreadable and the affected users must re-enter them. There is no
// re-encryption path.
package secret

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/sessionkeep/internal/util"
)

const (
	versionV1 = "v1"
	// aadV1 is authenticated along with every v1 ciphertext.
	aadV1 = "sessionkeep:secret:v1"
)

// derivation is baked into every derived key.
var derivation = util.PBKDF2Params{
	Salt:       []byte("sessionkeep-secret-cipher-v1"),
	Iterations: 100_000,
	KeyLen:     util.AESKeySize,
}

var b64 = base64.RawURLEncoding.Strict()

// KeySource records where the active key came from.
type KeySource string

const (
	KeySourceConfigured KeySource = "configured"
	KeySourceDerived    KeySource = "derived"
)

// Cipher seals and opens secrets with a single active key. It is safe for
// concurrent use.
type Cipher struct {
	key    *memguard.Enclave
	source KeySource
	logger *slog.Logger
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithLogger sets the logger used to report an unusable configured key.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cipher) {
		c.logger = logger
	}
}

// NewCipher resolves the active key. A configured encryptionKey is used when
// it decodes (URL-safe base64, padded or not) to exactly 32 bytes; otherwise
// the key is derived from appSecret.
func NewCipher(encryptionKey, appSecret string, opts ...Option) (*Cipher, error) {
	c := &Cipher{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	if encryptionKey != "" {
		raw, err := decodeKey(encryptionKey)
		if err == nil {
			c.key = memguard.NewEnclave(raw)
			c.source = KeySourceConfigured
			return c, nil
		}
		c.logger.Warn("ignoring configured encryption key, deriving from application secret",
			slog.String("error", err.Error()))
	}

	if appSecret == "" {
		return nil, &EncryptionError{Err: ErrKeyUnavailable}
	}
	raw, err := util.DerivePBKDF2Key(appSecret, derivation)
	if err != nil {
		return nil, &EncryptionError{Err: err}
	}
	c.key = memguard.NewEnclave(raw)
	c.source = KeySourceDerived
	return c, nil
}

func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("encryption key is not URL-safe base64: %w", err)
	}
	if len(raw) != util.AESKeySize {
		util.WipeBytes(raw)
		return nil, fmt.Errorf("encryption key must decode to %d bytes, got %d", util.AESKeySize, len(raw))
	}
	return raw, nil
}

// KeySource reports whether the active key was configured or derived.
func (c *Cipher) KeySource() KeySource {
	return c.source
}

// Encrypt seals plaintext. The result is safe to store verbatim.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	key, err := c.key.Open()
	if err != nil {
		return "", &EncryptionError{Err: fmt.Errorf("opening key enclave: %w", err)}
	}
	defer key.Destroy()

	sealed, err := util.EncryptAESWithAAD([]byte(plaintext), key.Bytes(), []byte(aadV1))
	if err != nil {
		return "", &EncryptionError{Err: err}
	}
	return versionV1 + ":" + b64.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any failure is a
// *DecryptionError; an authentication failure additionally matches
// ErrKeyMismatch.
func (c *Cipher) Decrypt(token string) (string, error) {
	version, body, ok := strings.Cut(token, ":")
	if !ok {
		return "", &DecryptionError{Err: ErrMalformed}
	}
	if version != versionV1 {
		return "", &DecryptionError{Err: fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)}
	}
	sealed, err := b64.DecodeString(body)
	if err != nil {
		return "", &DecryptionError{Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}

	key, err := c.key.Open()
	if err != nil {
		return "", &DecryptionError{Err: fmt.Errorf("opening key enclave: %w", err)}
	}
	defer key.Destroy()

	plain, err := util.DecryptAESWithAAD(sealed, key.Bytes(), []byte(aadV1))
	switch {
	case errors.Is(err, util.ErrAuthFailed):
		return "", &DecryptionError{Err: ErrKeyMismatch}
	case errors.Is(err, util.ErrShortCiphertext):
		return "", &DecryptionError{Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	case err != nil:
		return "", &DecryptionError{Err: err}
	}
	defer util.WipeBytes(plain)
	return string(plain), nil
}

// GenerateKey returns a fresh key suitable for the encryption_key setting.
func GenerateKey() (string, error) {
	raw, err := util.NewAESKey()
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(raw)
	return base64.URLEncoding.EncodeToString(raw), nil
}
