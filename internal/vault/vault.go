// Package vault provides custodial key material handling: authenticated
// symmetric encryption of wallet private keys at rest and generation of
// fresh chain keypairs.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when a ciphertext fails GCM tag
	// verification. It signals tampered or corrupted key material and must
	// abort the enclosing operation.
	ErrAuthentication = errors.New("vault: ciphertext authentication failed")

	// ErrInvalidMasterKey is returned at construction when the configured
	// master key is missing or not 32 bytes.
	ErrInvalidMasterKey = errors.New("vault: master key must be 32 bytes (64 hex chars)")
)

const (
	masterKeySize = 32
	nonceSize     = 12
	tagSize       = 16
)

// Vault performs AES-256-GCM encryption and decryption with a process-wide
// master key. A fresh nonce is drawn for every Encrypt call; nonces are never
// reused and never chosen by callers.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a hex-encoded 32-byte master key. The key is
// validated eagerly so a misconfigured deployment fails at startup, not on
// the first purchase.
func New(masterKeyHex string) (*Vault, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil || len(key) != masterKeySize {
		return nil, ErrInvalidMasterKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext and returns the ciphertext, the nonce used, and
// the GCM authentication tag as separate values, matching how the three
// parts are persisted on the API key record.
func (v *Vault) Encrypt(plaintext []byte) (ciphertext, iv, authTag []byte, err error) {
	iv = make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, iv, plaintext, nil)

	// Seal appends the tag; split it off for separate storage.
	ciphertext = sealed[:len(sealed)-tagSize]
	authTag = sealed[len(sealed)-tagSize:]
	return ciphertext, iv, authTag, nil
}

// Decrypt opens ciphertext previously produced by Encrypt. A tag mismatch
// (wrong key, flipped bit, swapped iv) returns ErrAuthentication and never
// partial plaintext.
func (v *Vault) Decrypt(ciphertext, iv, authTag []byte) ([]byte, error) {
	if len(iv) != nonceSize || len(authTag) != tagSize {
		return nil, ErrAuthentication
	}

	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := v.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
