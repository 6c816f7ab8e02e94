// Package ledger talks to the dataset registry contract on an EVM chain over
// plain JSON-RPC. It covers the small method surface the service needs: tag
// search, metadata lookup, ownership checks, balance reads, and purchase
// transactions with bounded confirmation waits.
package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// ErrConfirmationTimeout is returned when a submitted purchase transaction is
// not mined within the configured confirmation window. The transaction may
// still land later; callers must not report the purchase as settled.
var ErrConfirmationTimeout = errors.New("ledger: transaction confirmation timed out")

// ErrReverted is returned when a mined transaction has a failed receipt
// status.
var ErrReverted = errors.New("ledger: transaction reverted")

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client is a minimal Ethereum JSON-RPC client bound to a single endpoint.
type Client struct {
	rpcURL string
	http   *http.Client
}

// NewClient builds a client for the given RPC endpoint.
func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL: rpcURL,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Call performs a single JSON-RPC call and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: marshal rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("ledger: build rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ledger: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ledger: read rpc response: %w", err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("ledger: unmarshal rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("ledger: %s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

// callString performs a call whose result is a JSON string (the common case
// for quantity and data returns).
func (c *Client) callString(ctx context.Context, method string, params ...any) (string, error) {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("ledger: %s: unexpected result %s", method, raw)
	}
	return s, nil
}

// ethCall executes a read-only contract call and returns the raw return data.
func (c *Client) ethCall(ctx context.Context, to string, data []byte) ([]byte, error) {
	arg := map[string]string{
		"to":   to,
		"data": "0x" + hex.EncodeToString(data),
	}
	out, err := c.callString(ctx, "eth_call", arg, "latest")
	if err != nil {
		return nil, err
	}
	return hexBytes(out)
}

func hexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ledger: invalid hex data %q", s)
	}
	return b, nil
}

func hexBig(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("ledger: invalid hex quantity %q", s)
	}
	return v, nil
}

func hexUint64(s string) (uint64, error) {
	v, err := hexBig(s)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func bigHex(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}
