package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/server/middleware"
	"github.com/treenteq/harbor/internal/service"
)

// APIKeysHandler serves API key management for logged-in account owners.
type APIKeysHandler struct {
	keys *service.APIKeyService
}

func NewAPIKeysHandler(keys *service.APIKeyService) *APIKeysHandler {
	return &APIKeysHandler{keys: keys}
}

type createKeyRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type createKeyResponse struct {
	// APIKey is the plaintext key, shown exactly once at creation.
	APIKey      string     `json:"apiKey"`
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	PublicKey   string     `json:"publicKey"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Create handles POST /api-keys. A fresh custodial wallet is generated and
// bound to the key; the raw key appears only in this response.
func (h *APIKeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		writeError(w, http.StatusBadRequest, "expires_at must be in the future")
		return
	}

	key, rawKey, err := h.keys.Issue(r.Context(), principal.UserID, req.Name, req.Permissions, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			w.Header().Set("Retry-After", "3600")
			writeError(w, http.StatusTooManyRequests, "key issuance limit reached; try again later")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to issue key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createKeyResponse{
		APIKey:      rawKey,
		ID:          key.ID,
		Name:        key.Name,
		Permissions: key.Permissions,
		PublicKey:   key.WalletAddress,
		ExpiresAt:   key.ExpiresAt,
	})
}

// List handles GET /api-keys, returning the caller's keys newest first.
func (h *APIKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	keys, err := h.keys.List(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list keys: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_keys": keys,
	})
}

// Delete handles DELETE /api-keys/{keyID}: hard delete of the key and its
// wallet material, scoped to the owner.
func (h *APIKeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	keyID, ok := pathInt64(chi.URLParam(r, "keyID"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	if err := h.keys.Revoke(r.Context(), keyID, principal.UserID); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "api key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete key: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Usage handles GET /api-keys/{keyID}/usage, returning recent request
// records for one of the caller's keys.
func (h *APIKeysHandler) Usage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	keyID, ok := pathInt64(chi.URLParam(r, "keyID"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	limit := queryInt(r, "limit", 100)
	records, err := h.keys.Usage(r.Context(), keyID, principal.UserID, limit)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "api key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load usage: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"usage": records,
	})
}
