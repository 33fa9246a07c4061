package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	ivSize  = 16 // 128-bit IV, matches the stored envelope format
	tagSize = 16
)

var (
	// ErrInvalidFormat means the envelope does not split into iv:tag:ciphertext.
	ErrInvalidFormat = errors.New("invalid encrypted envelope format")
	// ErrIntegrity means the authentication tag did not verify.
	ErrIntegrity = errors.New("envelope failed integrity check")
)

// Vault encrypts opaque secrets with AES-256-GCM before they touch the database.
// The envelope is hex(iv):hex(tag):hex(ciphertext) so rows stay inspectable
// without ever exposing plaintext.
type Vault struct {
	aead cipher.AEAD
}

func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes (256 bits)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV. Encrypting the same input
// twice never yields the same envelope.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := v.aead.Seal(nil, iv, []byte(plaintext), nil)

	// Seal appends the tag to the ciphertext; the envelope keeps them apart
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt. Returns ErrInvalidFormat for
// malformed envelopes and ErrIntegrity when the tag does not verify.
func (v *Vault) Decrypt(envelope string) (string, error) {
	// ciphertext may be empty (empty plaintext); iv and tag never are
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", ErrInvalidFormat
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrInvalidFormat
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrInvalidFormat
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidFormat
	}

	plaintext, err := v.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrIntegrity
	}

	return string(plaintext), nil
}
