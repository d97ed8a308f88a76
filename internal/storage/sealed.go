package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var errInvalidCiphertext = errors.New("invalid ciphertext")

// SealedKV encrypts values with AES-GCM before handing them to the wrapped KV.
// Values written before sealing was enabled (plain JSON) are still readable.
type SealedKV struct {
	inner KV
	aead  cipher.AEAD
}

// NewSealedKV derives a 256-bit key from secret with HKDF-SHA256; info scopes the key
// to one purpose so the same secret can seal several stores.
func NewSealedKV(inner KV, secret, info string) (*SealedKV, error) {
	if secret == "" {
		return nil, errors.New("sealing secret is empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &SealedKV{inner: inner, aead: aead}, nil
}

func (s *SealedKV) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plain, err := s.open(raw, key)
	if err != nil {
		if looksLikeJSON(raw) {
			return raw, nil
		}
		return nil, err
	}
	return plain, nil
}

func (s *SealedKV) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.seal(value, key)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *SealedKV) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// the storage key is bound as additional data so ciphertexts cannot be swapped between keys
func (s *SealedKV) seal(plain []byte, key string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, []byte(key)), nil
}

func (s *SealedKV) open(data []byte, key string) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(data) < ns {
		return nil, errInvalidCiphertext
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], []byte(key))
	if err != nil {
		return nil, errInvalidCiphertext
	}
	return plain, nil
}

func looksLikeJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && (b[0] == '{' || b[0] == '[') && json.Valid(b)
}
