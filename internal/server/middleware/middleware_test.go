package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/model"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestRequestIDReplacesOversizedClientID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", maxClientRequestID+1))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if len(respID) != 36 {
		t.Errorf("oversized client id should be replaced with a UUID, got %q", respID)
	}
}

// ---------------------------------------------------------------------------
// Rate limit middleware tests
// ---------------------------------------------------------------------------

func TestRateLimitByAPIKeyIsolatesKeys(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitByAPIKey(1)(inner)

	do := func(apiKey string) int {
		req := httptest.NewRequest("GET", "/quote", nil)
		req.RemoteAddr = "203.0.113.9:4711"
		if apiKey != "" {
			req.Header.Set("X-API-Key", apiKey)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := do("hbr_aaaa"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := do("hbr_aaaa"); code != http.StatusTooManyRequests {
		t.Errorf("second request same key: %d, want 429", code)
	}
	// A different key gets its own bucket.
	if code := do("hbr_bbbb"); code != http.StatusOK {
		t.Errorf("other key: %d, want 200", code)
	}
}

// ---------------------------------------------------------------------------
// RequireAPIKey / RequireUser middleware tests
// ---------------------------------------------------------------------------

func keyPrincipal(perms ...string) *Principal {
	return &Principal{
		Type:   "api_key",
		UserID: 1,
		Key:    &model.APIKey{ID: 7, UserID: 1, Permissions: perms, IsActive: true},
	}
}

func TestRequireAPIKeyAllowsPermittedKey(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAPIKey("datasets:read")(inner)

	req := httptest.NewRequest("GET", "/quote", nil)
	req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, keyPrincipal("datasets:read")))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRequireAPIKeyHonorsWildcard(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAPIKey("datasets:purchase")(inner)

	req := httptest.NewRequest("POST", "/datasets", nil)
	req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, keyPrincipal("*")))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRequireAPIKeyBlocksMissingPermission(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called")
	})
	handler := RequireAPIKey("datasets:purchase")(inner)

	req := httptest.NewRequest("POST", "/datasets", nil)
	req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, keyPrincipal("datasets:read")))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

func TestRequireAPIKeyBlocksSessionPrincipal(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called")
	})
	handler := RequireAPIKey("datasets:read")(inner)

	req := httptest.NewRequest("GET", "/quote", nil)
	req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, &Principal{Type: "user", UserID: 1}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestRequireUserBlocksAPIKeyPrincipal(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inner handler should not be called")
	})
	handler := RequireUser()(inner)

	req := httptest.NewRequest("POST", "/api-keys", nil)
	req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, keyPrincipal("*")))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Audit middleware tests
// ---------------------------------------------------------------------------

func TestAuditRecordsAPIKeyRequests(t *testing.T) {
	store, err := config.NewStore(config.StoreConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := Audit(store)(inner)

	// Usage rows reference the key row; create owner and key first.
	user := &model.User{Email: "o@example.com", PasswordHash: "h", PasswordSalt: "s", IsActive: true}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	key := &model.APIKey{
		UserID: user.ID, KeyHash: "hash", KeyPrefix: "hbr_1234",
		WalletAddress: "0xabc", EncryptedKey: "x", KeyIV: "x", KeyAuthTag: "x",
		IsActive: true,
	}
	if err := store.CreateAPIKey(context.Background(), key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	req := httptest.NewRequest("GET", "/quote", nil)
	req.RemoteAddr = "203.0.113.9:4711"
	req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, &Principal{
		Type: "api_key", UserID: user.ID, Key: key,
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	// The insert is async; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		recs, err := store.ListUsageByKey(context.Background(), key.ID, 10)
		if err != nil {
			t.Fatalf("ListUsageByKey: %v", err)
		}
		if len(recs) == 1 {
			if recs[0].Status != http.StatusTeapot || recs[0].CallerIP != "203.0.113.9" {
				t.Errorf("unexpected record: %+v", recs[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("usage row never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAuditIgnoresSessionRequests(t *testing.T) {
	store, err := config.NewStore(config.StoreConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Audit(store)(inner)

	req := httptest.NewRequest("GET", "/api-keys", nil)
	req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, &Principal{Type: "user", UserID: 1}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// GetPrincipal tests
// ---------------------------------------------------------------------------

func TestGetPrincipalWithoutValue(t *testing.T) {
	if got := GetPrincipal(context.Background()); got != nil {
		t.Error("expected nil principal from bare context")
	}
}
