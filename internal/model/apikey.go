package model

import "time"

// APIKey represents an API key used to authenticate requests against the
// dataset API. Each key is bound 1:1 to a custodial wallet whose private key
// is stored AES-GCM encrypted alongside the key record; deleting the key
// deletes the wallet material with it. The raw key is never stored; only a
// SHA-256 hash and a short prefix for identification are persisted.
type APIKey struct {
	ID        int64  `json:"id" db:"id"`
	UserID    int64  `json:"user_id" db:"user_id"`
	KeyHash   string `json:"-" db:"key_hash"`            // SHA-256 hash, never expose
	KeyPrefix string `json:"key_prefix" db:"key_prefix"` // "hbr_" + first 8 hex chars
	Name      string `json:"name" db:"name"`

	// Custodial wallet material. The address is public; everything else is
	// ciphertext produced by the vault and never leaves the server.
	WalletAddress string `json:"wallet_address" db:"wallet_address"`
	EncryptedKey  string `json:"-" db:"encrypted_key"` // base64 AES-GCM ciphertext
	KeyIV         string `json:"-" db:"key_iv"`        // base64 nonce
	KeyAuthTag    string `json:"-" db:"key_auth_tag"`  // base64 GCM tag

	Permissions []string   `json:"permissions" db:"-"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty" db:"last_used"`
}

// HasPermission reports whether the key carries the named permission or the
// wildcard "*".
func (k *APIKey) HasPermission(perm string) bool {
	for _, p := range k.Permissions {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}
