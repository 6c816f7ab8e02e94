package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/treenteq/harbor/internal/fulfillment"
	"github.com/treenteq/harbor/internal/ledger"
	"github.com/treenteq/harbor/internal/model"
	"github.com/treenteq/harbor/internal/quote"
	"github.com/treenteq/harbor/internal/server/middleware"
	"github.com/treenteq/harbor/internal/vault"
)

// Redeemer executes quote redemptions. Satisfied by the fulfillment engine.
type Redeemer interface {
	Redeem(ctx context.Context, key *model.APIKey, quoteToken string, tokenIDs []uint64) ([]model.PurchaseResult, error)
}

// DatasetsHandler serves quote redemption.
type DatasetsHandler struct {
	engine Redeemer
}

func NewDatasetsHandler(engine Redeemer) *DatasetsHandler {
	return &DatasetsHandler{engine: engine}
}

type redeemRequest struct {
	TokenIDs  []uint64 `json:"tokenIds"`
	QuoteHash string   `json:"quoteHash"`
}

// Redeem handles POST /datasets. The caller presents a quote hash and the
// subset of quoted dataset ids it wants; the response carries one outcome per
// requested dataset.
func (h *DatasetsHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil || principal.Key == nil {
		writeError(w, http.StatusUnauthorized, "API key required")
		return
	}

	var req redeemRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.QuoteHash == "" {
		writeError(w, http.StatusBadRequest, "quoteHash is required")
		return
	}
	if len(req.TokenIDs) == 0 {
		writeError(w, http.StatusBadRequest, "tokenIds must not be empty")
		return
	}

	results, err := h.engine.Redeem(r.Context(), principal.Key, req.QuoteHash, req.TokenIDs)
	if err != nil {
		status, msg := classifyRedeemError(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, model.RedeemResponse{
		Success:  true,
		Datasets: results,
	})
}

// classifyRedeemError maps request-level redemption failures onto HTTP
// statuses. Per-dataset failures never reach here; they ride inline in the
// response body.
func classifyRedeemError(err error) (int, string) {
	switch {
	case errors.Is(err, quote.ErrExpired):
		return http.StatusBadRequest, "quote expired or unknown; request a new quote"
	case errors.Is(err, fulfillment.ErrNotQuoted):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, fulfillment.ErrInsufficientBalance):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, vault.ErrAuthentication):
		// Wallet material failed integrity checks. Never leak detail.
		return http.StatusInternalServerError, "wallet key integrity check failed"
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusBadGateway, "ledger error: " + err.Error()
	}
}
