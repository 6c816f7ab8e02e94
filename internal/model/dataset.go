package model

import "math/big"

// Dataset is the off-chain view of a tokenized dataset. The canonical state
// lives in the on-chain registry; this struct only mirrors what the contract
// reports at read time.
type Dataset struct {
	TokenID        uint64   `json:"tokenId"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	ContentHash    string   `json:"contentHash"`
	ContentLocator string   `json:"contentLocator"` // CID resolvable via the storage gateway
	Price          *big.Int `json:"price"`          // wei
	Tags           []string `json:"tags"`
}

// PayloadKind classifies a fetched dataset payload into one of a closed set
// of transport encodings.
type PayloadKind string

const (
	PayloadJSON        PayloadKind = "json"
	PayloadCSV         PayloadKind = "csv"
	PayloadSpreadsheet PayloadKind = "spreadsheet"
	PayloadBinary      PayloadKind = "binary"
)

// Payload is a dataset payload fetched from the storage gateway, normalized
// for JSON transport. Text kinds carry Data verbatim; spreadsheet and binary
// kinds carry base64 and set Encoding accordingly.
type Payload struct {
	Kind        PayloadKind `json:"kind"`
	ContentType string      `json:"content_type"`
	Encoding    string      `json:"encoding,omitempty"` // "base64" for non-text kinds
	Data        string      `json:"data"`
}

// PurchaseResult is the per-dataset outcome of a quote redemption. Exactly
// one of Payload or Error is set unless the purchase confirmed but the fetch
// failed, in which case TxHash and Error are both present.
type PurchaseResult struct {
	TokenID      uint64   `json:"tokenId"`
	AlreadyOwned bool     `json:"alreadyOwned"`
	Purchased    bool     `json:"purchased"`
	TxHash       string   `json:"transactionHash,omitempty"`
	Payload      *Payload `json:"payload,omitempty"`
	Error        string   `json:"error,omitempty"`
}
