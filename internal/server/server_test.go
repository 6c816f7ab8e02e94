package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/model"
	"github.com/treenteq/harbor/internal/quote"
	"github.com/treenteq/harbor/internal/service"
	"github.com/treenteq/harbor/internal/vault"
)

const (
	testJWTSecret = "test-secret-for-server-integration-tests"
	testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

// stubCatalog satisfies handler.Catalog with canned answers.
type stubCatalog struct {
	byTag map[string][]uint64
	meta  map[uint64]model.Dataset
}

func (s *stubCatalog) FindByTag(_ context.Context, tag string) ([]uint64, error) {
	return s.byTag[tag], nil
}

func (s *stubCatalog) Metadata(_ context.Context, tokenID uint64) (*model.Dataset, error) {
	ds, ok := s.meta[tokenID]
	if !ok {
		return nil, fmt.Errorf("unknown token %d", tokenID)
	}
	return &ds, nil
}

// stubRedeemer satisfies handler.Redeemer without touching a chain.
type stubRedeemer struct {
	results []model.PurchaseResult
}

func (s *stubRedeemer) Redeem(_ context.Context, _ *model.APIKey, _ string, _ []uint64) ([]model.PurchaseResult, error) {
	return s.results, nil
}

// testEnv holds the shared state for server integration tests.
type testEnv struct {
	server *Server
	store  *config.Store
	keySvc *service.APIKeyService
}

// newTestEnv creates a fresh test environment with an in-memory record store
// and a fully wired Server.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore(config.StoreConfig{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	v, err := vault.New(testMasterKey)
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}

	authSvc := service.NewAuthService(store, testJWTSecret, time.Hour)
	keySvc := service.NewAPIKeyService(store, v, 10)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	deps := Deps{
		Store: store,
		Auth:  authSvc,
		Keys:  keySvc,
		Catalog: &stubCatalog{
			byTag: map[string][]uint64{"climate": {7}},
			meta: map[uint64]model.Dataset{
				7: {TokenID: 7, Name: "climate-obs", Price: big.NewInt(1000)},
			},
		},
		Engine: &stubRedeemer{},
		Quotes: quote.NewCache(),
	}
	srv := New(cfg.Server, cfg.Limits, deps, logger)

	return &testEnv{server: srv, store: store, keySvc: keySvc}
}

// issueKey creates an account plus one API key and returns the raw key string.
func (e *testEnv) issueKey(t *testing.T) string {
	t.Helper()
	hash, salt, err := service.HashPassword("supersecretpassword")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &model.User{
		Email:        "owner@example.com",
		PasswordHash: hash,
		PasswordSalt: salt,
		Name:         "Owner",
		IsActive:     true,
	}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	_, rawKey, err := e.keySvc.Issue(context.Background(), user.ID, "integration", nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return rawKey
}

func (e *testEnv) do(t *testing.T, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rr.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", rr.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Checks["store"] != "ok" {
		t.Errorf("store check = %q, want %q", body.Checks["store"], "ok")
	}
}

// failingPinger simulates an unreachable chain RPC endpoint.
type failingPinger struct{}

func (failingPinger) Ping(context.Context) error {
	return fmt.Errorf("connection refused")
}

func TestReadyzDegradedWhenChainUnreachable(t *testing.T) {
	env := newTestEnv(t)
	env.server.deps.Chain = failingPinger{}

	rr := env.do(t, "GET", "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rr.Code)
	}

	var body struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Checks["store"] != "ok" {
		t.Errorf("store check = %q, want ok", body.Checks["store"])
	}
	if body.Checks["chain"] == "ok" || body.Checks["chain"] == "" {
		t.Errorf("chain check = %q, want an error", body.Checks["chain"])
	}
}

func TestReadyzDegradedWhenStoreClosed(t *testing.T) {
	env := newTestEnv(t)
	env.store.Close()

	rr := env.do(t, "GET", "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rr.Code)
	}
}

func TestOpenAPISpecServed(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/openapi.json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("openapi status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var spec map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &spec); err != nil {
		t.Fatalf("unmarshal spec: %v", err)
	}
	if _, ok := spec["paths"]; !ok {
		t.Error("spec has no paths section")
	}
}

func TestQuoteRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/quote?searchParam=climate", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated quote status = %d, want 401", rr.Code)
	}
}

func TestQuoteWithAPIKey(t *testing.T) {
	env := newTestEnv(t)
	rawKey := env.issueKey(t)

	rr := env.do(t, "GET", "/quote?searchParam=climate", map[string]string{
		"X-API-Key": rawKey,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("quote status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp model.QuoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Datasets) != 1 || resp.Datasets[0].TokenID != 7 {
		t.Errorf("unexpected datasets: %+v", resp.Datasets)
	}
	if resp.QuoteHash == "" {
		t.Error("quote hash is empty")
	}
}

func TestKeyManagementRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	rawKey := env.issueKey(t)

	// An API key is not an account session; key management must reject it.
	rr := env.do(t, "GET", "/api-keys", map[string]string{
		"X-API-Key": rawKey,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("api-keys with API key status = %d, want 403", rr.Code)
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
