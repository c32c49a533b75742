// Package crypto provides authenticated encryption for agent secrets
// (bearer tokens, LLM API keys, channel credential blobs).
//
// Wire format: base64( iv[16] || gcm-tag[16] || ciphertext ). The key is
// derived from the configured secret with scrypt; the salt comes from
// configuration so it can be rotated alongside the key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	ivLength  = 16
	tagLength = 16

	// scrypt cost parameters (N, r, p)
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// Box encrypts and decrypts short secret strings with a key derived once at
// construction. Safe for concurrent use.
type Box struct {
	aead cipher.AEAD
}

func NewBox(secret, salt string) (*Box, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret must not be empty")
	}
	key, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Encrypt returns base64(iv + tag + ciphertext).
func (b *Box) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	// Seal appends the tag after the ciphertext; the stored layout keeps the
	// tag before it, so reorder.
	sealed := b.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	out := make([]byte, 0, ivLength+tagLength+len(ct))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Tampered or truncated input fails
// authentication and returns an error.
func (b *Box) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(data) < ivLength+tagLength {
		return "", fmt.Errorf("ciphertext too short: %d bytes", len(data))
	}

	iv := data[:ivLength]
	tag := data[ivLength : ivLength+tagLength]
	ct := data[ivLength+tagLength:]

	sealed := make([]byte, 0, len(ct)+tagLength)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := b.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plain), nil
}
