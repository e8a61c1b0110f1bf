package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	AESKeySize   = 32
	GCMNonceSize = 12
)

// ErrAuthFailed is returned by DecryptAESWithAAD when the GCM tag does not
// verify: the key, the AAD or the ciphertext differ from what was sealed.
var ErrAuthFailed = errors.New("message authentication failed")

// ErrShortCiphertext is returned when the input cannot hold a nonce and a tag.
var ErrShortCiphertext = errors.New("ciphertext too short")

func newGCM(rawKey []byte) (cipher.AEAD, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// EncryptAESWithAAD seals plainText with AES-256-GCM and returns
// nonce || ciphertext || tag.
func EncryptAESWithAAD(plainText, rawKey, aad []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plainText, aad), nil
}

// DecryptAESWithAAD opens a nonce || ciphertext || tag blob produced by
// EncryptAESWithAAD.
func DecryptAESWithAAD(cipherText, rawKey, aad []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}

	if len(cipherText) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrShortCiphertext
	}

	nonce, cipherText := cipherText[:gcm.NonceSize()], cipherText[gcm.NonceSize():]

	plainText, err := gcm.Open(nil, nonce, cipherText, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plainText, nil
}

func NewAESKey() ([]byte, error) {
	return RandomBytes(AESKeySize)
}
