package handler

import (
	"context"
	"net/http"

	"github.com/treenteq/harbor/internal/model"
	"github.com/treenteq/harbor/internal/quote"
)

// Catalog is the read-only slice of the ledger the quote endpoint needs.
type Catalog interface {
	FindByTag(ctx context.Context, tag string) ([]uint64, error)
	Metadata(ctx context.Context, tokenID uint64) (*model.Dataset, error)
}

// QuoteHandler serves priced dataset quotes against the on-chain catalog.
type QuoteHandler struct {
	catalog Catalog
	quotes  *quote.Cache
}

func NewQuoteHandler(catalog Catalog, quotes *quote.Cache) *QuoteHandler {
	return &QuoteHandler{catalog: catalog, quotes: quotes}
}

// GetQuote handles GET /quote?searchParam=<tag>. It resolves the tag against
// the registry, prices every match, and caches the result under a short-lived
// quote hash the client redeems via POST /datasets.
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	tag := queryString(r, "searchParam")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "searchParam query parameter is required")
		return
	}

	ids, err := h.catalog.FindByTag(r.Context(), tag)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ledger search failed: "+err.Error())
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusNotFound, "no datasets found for tag", map[string]interface{}{
			"searchParam": tag,
		})
		return
	}

	datasets := make([]model.Dataset, 0, len(ids))
	for _, id := range ids {
		ds, err := h.catalog.Metadata(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusBadGateway, "ledger metadata lookup failed: "+err.Error())
			return
		}
		datasets = append(datasets, *ds)
	}

	hash, err := h.quotes.Put(datasets)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue quote")
		return
	}

	writeJSON(w, http.StatusOK, model.QuoteResponse{
		Success:   true,
		Datasets:  datasets,
		QuoteHash: hash,
	})
}
