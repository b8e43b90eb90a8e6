package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// SealedBox encrypts the small JSON payloads handed to the client: the opaque
// signup ticket echoed back on verify/resend calls and the create-password
// cookie. The server never trusts client-supplied identity without opening
// one of these.
type SealedBox struct {
	aead cipher.AEAD
}

// NewSealedBox builds a box over AES-256-GCM. The key must be 32 bytes.
func NewSealedBox(key []byte) (*SealedBox, error) {
	if len(key) != 32 {
		return nil, errors.New("identity: sealed box key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealed box cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sealed box aead: %w", err)
	}
	return &SealedBox{aead: aead}, nil
}

// Seal marshals v and returns nonce||ciphertext, base64url encoded.
func (b *SealedBox) Seal(v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := b.aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts a sealed token into dst. Any decode, authentication or
// unmarshal failure is reported as ErrInvalidClientToken; the caller learns
// nothing about which part failed.
func (b *SealedBox) Open(token string, dst any) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidClientToken
	}
	n := b.aead.NonceSize()
	if len(raw) <= n {
		return ErrInvalidClientToken
	}
	plain, err := b.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return ErrInvalidClientToken
	}
	if err := json.Unmarshal(plain, dst); err != nil {
		return ErrInvalidClientToken
	}
	return nil
}
