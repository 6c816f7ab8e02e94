package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/model"
	"github.com/treenteq/harbor/internal/vault"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestStore(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.NewStore(config.StoreConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestAuth(t *testing.T) (*AuthService, *config.Store) {
	t.Helper()
	store := newTestStore(t)
	auth := NewAuthService(store, "test-secret-key-for-jwt", time.Hour)
	return auth, store
}

func createTestUser(t *testing.T, store *config.Store, email, password string) *model.User {
	t.Helper()
	hash, salt, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		Name:         "Test User",
		IsActive:     true,
	}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestJWTRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueJWT(ctx, 42, "owner@example.com", 1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	principal, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.UserID != 42 {
		t.Errorf("UserID: got %d, want 42", principal.UserID)
	}
	if principal.Email != "owner@example.com" {
		t.Errorf("Email: got %q, want %q", principal.Email, "owner@example.com")
	}
}

func TestJWTExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.IssueJWT(ctx, 1, "test@test.com", -1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	if _, err := auth.ValidateJWT(ctx, token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTInvalidToken(t *testing.T) {
	auth, _ := newTestAuth(t)

	if _, err := auth.ValidateJWT(context.Background(), "garbage.token.here"); err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, salt, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("correct horse battery staple", hash, salt) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong password", hash, salt) {
		t.Error("wrong password accepted")
	}

	// A second hash of the same password must use a fresh salt.
	hash2, salt2, _ := HashPassword("correct horse battery staple")
	if salt == salt2 || hash == hash2 {
		t.Error("expected per-password salt")
	}
}

func TestLogin(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	createTestUser(t, store, "owner@example.com", "hunter2hunter2")

	token, user, err := auth.Login(ctx, "owner@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Email != "owner@example.com" {
		t.Errorf("Email = %q", user.Email)
	}

	principal, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.UserID != user.ID {
		t.Errorf("UserID = %d, want %d", principal.UserID, user.ID)
	}

	if _, _, err := auth.Login(ctx, "owner@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := auth.Login(ctx, "nobody@example.com", "hunter2hunter2"); err != ErrInvalidCredentials {
		t.Errorf("unknown user: got %v, want ErrInvalidCredentials", err)
	}
}

func TestAPIKeyValidation(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	user := createTestUser(t, store, "owner@example.com", "hunter2hunter2")

	v, err := vault.New(testMasterKey)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	keys := NewAPIKeyService(store, v, 5)

	issued, rawKey, err := keys.Issue(ctx, user.ID, "ci key", nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(rawKey, "hbr_") {
		t.Errorf("raw key %q missing prefix", rawKey)
	}

	key, err := auth.ValidateAPIKey(ctx, rawKey)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if key.ID != issued.ID {
		t.Errorf("key ID = %d, want %d", key.ID, issued.ID)
	}
	if key.WalletAddress != issued.WalletAddress {
		t.Errorf("wallet address mismatch")
	}

	if _, err := auth.ValidateAPIKey(ctx, "hbr_not_a_real_key"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAPIKeyRevoked(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	user := createTestUser(t, store, "owner@example.com", "hunter2hunter2")
	v, _ := vault.New(testMasterKey)
	keys := NewAPIKeyService(store, v, 5)

	issued, rawKey, err := keys.Issue(ctx, user.ID, "doomed", nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := keys.Revoke(ctx, issued.ID, user.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// Hard delete: the key no longer resolves at all.
	if _, err := auth.ValidateAPIKey(ctx, rawKey); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAPIKeyExpired(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	user := createTestUser(t, store, "owner@example.com", "hunter2hunter2")
	v, _ := vault.New(testMasterKey)
	keys := NewAPIKeyService(store, v, 5)

	past := time.Now().Add(-time.Minute)
	_, rawKey, err := keys.Issue(ctx, user.ID, "stale", nil, &past)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := auth.ValidateAPIKey(ctx, rawKey); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}
