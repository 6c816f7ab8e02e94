package model

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// QuoteResponse is returned by the quote endpoint. The quote hash is the
// opaque token redeemed later against POST /datasets.
type QuoteResponse struct {
	Success   bool      `json:"success"`
	Datasets  []Dataset `json:"datasets"`
	QuoteHash string    `json:"quoteHash"`
}

// RedeemResponse is returned by the redemption endpoint with one entry per
// requested dataset.
type RedeemResponse struct {
	Success  bool             `json:"success"`
	Datasets []PurchaseResult `json:"datasets"`
}
