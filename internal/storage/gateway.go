// Package storage fetches dataset payloads from a content-addressed storage
// gateway and normalizes them for JSON transport.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/treenteq/harbor/internal/model"
)

// ErrFetch wraps any failure to resolve a content locator to payload bytes.
// Fetch failures are per-dataset and never abort a whole redemption.
var ErrFetch = errors.New("storage: payload fetch failed")

// maxPayloadBytes caps how much of a payload we will buffer per dataset.
const maxPayloadBytes = 64 << 20

// Gateway resolves content locators against an HTTP content-addressed
// storage gateway.
type Gateway struct {
	baseURL string
	http    *http.Client
}

// NewGateway builds a gateway client. baseURL is the gateway root, e.g.
// "https://ipfs.example.com".
func NewGateway(baseURL string, fetchTimeout time.Duration) *Gateway {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch resolves a content locator to a normalized payload. The locator is a
// CID, optionally followed by a path ("<cid>/report.csv"); the CID component
// is validated before any request goes out.
func (g *Gateway) Fetch(ctx context.Context, locator string) (*model.Payload, error) {
	locator = strings.TrimPrefix(strings.TrimSpace(locator), "ipfs://")
	cidPart, _, _ := strings.Cut(locator, "/")
	if _, err := cid.Decode(cidPart); err != nil {
		return nil, fmt.Errorf("%w: invalid content locator %q: %v", ErrFetch, locator, err)
	}

	url := g.baseURL + "/ipfs/" + locator
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned status %d for %s", ErrFetch, resp.StatusCode, locator)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	if len(data) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrFetch, maxPayloadBytes)
	}

	return Normalize(data, resp.Header.Get("Content-Type"), locator), nil
}
