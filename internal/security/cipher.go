package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"privacy-relay-settlement/internal/store"
)

// ErrDecryptionFailed is returned for every decryption failure. A wrong key
// and tampered ciphertext are deliberately indistinguishable.
var ErrDecryptionFailed = fmt.Errorf("%w: key authentication failed", store.ErrInternal)

// Decrypter opens stored signing keys into a SecretBuffer.
type Decrypter interface {
	DecryptInto(ciphertext string, buf *SecretBuffer) error
}

// Cipher seals signing keys with AES-256-GCM. Ciphertext is base64 with the
// nonce prepended.
type Cipher struct {
	aead cipher.AEAD
}

var _ Decrypter = (*Cipher)(nil)

// NewCipher accepts a 32 byte master key, raw or base64 encoded.
func NewCipher(masterKey string) (*Cipher, error) {
	keyBytes := []byte(masterKey)
	if decoded, err := base64.StdEncoding.DecodeString(masterKey); err == nil && len(decoded) == 32 {
		keyBytes = decoded
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("invalid master key length: must be 32 bytes for AES-256, got %d", len(keyBytes))
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext. The caller still owns and should wipe plaintext.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", errors.New("plaintext cannot be empty")
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptInto opens ciphertext into buf, replacing any previous contents.
// On failure buf is left wiped.
func (c *Cipher) DecryptInto(ciphertext string, buf *SecretBuffer) error {
	buf.Wipe()

	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return ErrDecryptionFailed
	}
	nonceSize := c.aead.NonceSize()
	if len(decoded) < nonceSize+c.aead.Overhead() {
		return ErrDecryptionFailed
	}

	nonce, sealed := decoded[:nonceSize], decoded[nonceSize:]
	plaintext, err := c.aead.Open(make([]byte, 0, len(sealed)), nonce, sealed, nil)
	if err != nil {
		return ErrDecryptionFailed
	}
	buf.b = plaintext
	return nil
}

// GenerateMasterKey returns a random base64 encoded 32 byte key.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
