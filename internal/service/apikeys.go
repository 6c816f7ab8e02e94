package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/model"
	"github.com/treenteq/harbor/internal/vault"
)

// ErrRateLimited is returned when an owner has hit the key-issuance quota for
// the rolling window.
var ErrRateLimited = errors.New("api key issuance rate limit exceeded")

const (
	keyPrefix   = "hbr_"
	keyRandLen  = 24 // random bytes per key, hex-encoded
	issueWindow = 24 * time.Hour
)

// DefaultPermissions are granted to newly issued keys.
var DefaultPermissions = []string{"datasets:read", "datasets:purchase"}

// APIKeyService issues, lists, and revokes API keys and the custodial
// wallets bound to them.
type APIKeyService struct {
	store      *config.Store
	vault      *vault.Vault
	keysPerDay int
}

func NewAPIKeyService(store *config.Store, v *vault.Vault, keysPerDay int) *APIKeyService {
	if keysPerDay <= 0 {
		keysPerDay = 5
	}
	return &APIKeyService{
		store:      store,
		vault:      v,
		keysPerDay: keysPerDay,
	}
}

// Issue mints a new API key for userID, generating a fresh custodial wallet
// and sealing its private key into the record. The raw key is returned
// exactly once and never persisted.
func (s *APIKeyService) Issue(ctx context.Context, userID int64, name string, permissions []string, expiresAt *time.Time) (*model.APIKey, string, error) {
	count, err := s.store.CountAPIKeysCreatedSince(ctx, userID, time.Now().Add(-issueWindow))
	if err != nil {
		return nil, "", fmt.Errorf("check issuance quota: %w", err)
	}
	if count >= s.keysPerDay {
		return nil, "", ErrRateLimited
	}

	randBytes := make([]byte, keyRandLen)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := keyPrefix + hex.EncodeToString(randBytes)

	keypair, err := vault.GenerateKeypair()
	if err != nil {
		return nil, "", err
	}
	ciphertext, iv, authTag, err := s.vault.Encrypt(keypair.PrivateKey)
	if err != nil {
		return nil, "", err
	}

	if len(permissions) == 0 {
		permissions = DefaultPermissions
	}

	key := &model.APIKey{
		UserID:        userID,
		KeyHash:       config.HashAPIKey(rawKey),
		KeyPrefix:     rawKey[:len(keyPrefix)+8],
		Name:          name,
		WalletAddress: keypair.Address,
		EncryptedKey:  base64.StdEncoding.EncodeToString(ciphertext),
		KeyIV:         base64.StdEncoding.EncodeToString(iv),
		KeyAuthTag:    base64.StdEncoding.EncodeToString(authTag),
		Permissions:   permissions,
		IsActive:      true,
		ExpiresAt:     expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("persist api key: %w", err)
	}
	return key, rawKey, nil
}

// List returns all keys owned by userID, newest first.
func (s *APIKeyService) List(ctx context.Context, userID int64) ([]model.APIKey, error) {
	return s.store.ListAPIKeysByUser(ctx, userID)
}

// Revoke hard-deletes a key and its wallet material. Scoped to the owner;
// revoking someone else's key reports config.ErrNotFound.
func (s *APIKeyService) Revoke(ctx context.Context, keyID, userID int64) error {
	return s.store.DeleteAPIKey(ctx, keyID, userID)
}

// Usage returns recent request records for one of the owner's keys.
func (s *APIKeyService) Usage(ctx context.Context, keyID, userID int64, limit int) ([]model.UsageRecord, error) {
	key, err := s.store.GetAPIKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.UserID != userID {
		return nil, config.ErrNotFound
	}
	return s.store.ListUsageByKey(ctx, keyID, limit)
}

// WalletKey unseals the custodial private key bound to an API key. Callers
// must not retain the returned key beyond the operation that needed it.
func (s *APIKeyService) WalletKey(key *model.APIKey) (*secp256k1.PrivateKey, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(key.EncryptedKey)
	if err != nil {
		return nil, vault.ErrAuthentication
	}
	iv, err := base64.StdEncoding.DecodeString(key.KeyIV)
	if err != nil {
		return nil, vault.ErrAuthentication
	}
	authTag, err := base64.StdEncoding.DecodeString(key.KeyAuthTag)
	if err != nil {
		return nil, vault.ErrAuthentication
	}

	plaintext, err := s.vault.Decrypt(ciphertext, iv, authTag)
	if err != nil {
		return nil, err
	}
	return vault.PrivateKeyFromBytes(plaintext)
}
