// Package vault provides symmetric authenticated encryption for secret
// values. The master key is process configuration (base64, 32 bytes),
// validated once at startup; ciphertext and nonce are what the repository
// persists, plaintext never touches the database.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const keySize = 32 // AES-256

// Vault encrypts and decrypts secret values with AES-256-GCM.
type Vault struct {
	aead cipher.AEAD
}

// New constructs a Vault from a base64-encoded 32-byte key. It fails fast
// on a malformed or wrong-size key, refusing to start rather than running
// with a broken component.
func New(base64Key string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("vault: decode master key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("vault: master key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt returns ciphertext and the nonce used to produce it. A fresh
// random nonce is generated on every call.
func (v *Vault) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("vault: generate nonce: %w", err)
	}
	ciphertext = v.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt reverses Encrypt. It fails if the ciphertext was tampered with
// or the nonce doesn't match.
func (v *Vault) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: %w", err)
	}
	return plaintext, nil
}

// GenerateKey produces a fresh base64-encoded 32-byte key, for use by an
// operator bootstrapping a new deployment's configuration.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
