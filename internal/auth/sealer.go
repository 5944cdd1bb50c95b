package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealerInfo = "shallot-settings-v1"

// ErrSealedValue is returned when a stored value cannot be decrypted,
// usually because the encryption key changed.
var ErrSealedValue = errors.New("cannot open sealed value")

// Sealer encrypts setting values before they reach the store and
// decrypts them on the way out. The AEAD key is derived from the
// configured passphrase with HKDF-SHA256; the wire format is
// base64(nonce || ciphertext).
type Sealer struct {
	key []byte
}

// NewSealer derives the sealing key from a passphrase.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("encryption key must not be empty")
	}
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(sealerInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts plaintext for storage.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored value.
func (s *Sealer) Open(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrSealedValue
	}
	if len(raw) < chacha20poly1305.NonceSize {
		return nil, ErrSealedValue
	}
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSealedValue
	}
	return plaintext, nil
}
