package util

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Params are baked into every key derived from the application secret.
// Changing either value makes all previously sealed secrets unreadable.
type PBKDF2Params struct {
	Salt       []byte
	Iterations int
	KeyLen     int
}

func DerivePBKDF2Key(secret string, params PBKDF2Params) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("pbkdf2: empty secret")
	}
	if params.KeyLen != AESKeySize {
		return nil, errors.New("pbkdf2 key length must be 32 bytes")
	}
	if params.Iterations <= 0 || len(params.Salt) == 0 {
		return nil, errors.New("pbkdf2: salt and iterations are required")
	}
	return pbkdf2.Key([]byte(secret), params.Salt, params.Iterations, params.KeyLen, sha256.New), nil
}
