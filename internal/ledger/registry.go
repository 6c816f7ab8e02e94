package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/treenteq/harbor/internal/model"
)

// defaultGasLimit is used when the node refuses to estimate gas for a
// purchase call.
const defaultGasLimit = 300_000

// Registry is the adapter over the on-chain dataset registry contract. All
// methods issue JSON-RPC calls against a single configured endpoint.
type Registry struct {
	client   *Client
	contract string
	chainID  *big.Int

	confirmTimeout  time.Duration
	confirmInterval time.Duration
}

// Options configure a Registry beyond its endpoint and contract address.
type Options struct {
	ChainID         int64
	ConfirmTimeout  time.Duration
	ConfirmInterval time.Duration
}

// NewRegistry builds a registry adapter for the contract at the given
// address.
func NewRegistry(rpcURL, contract string, opts Options) *Registry {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 90 * time.Second
	}
	if opts.ConfirmInterval <= 0 {
		opts.ConfirmInterval = 2 * time.Second
	}
	if opts.ChainID <= 0 {
		opts.ChainID = 1
	}
	return &Registry{
		client:          NewClient(rpcURL),
		contract:        contract,
		chainID:         big.NewInt(opts.ChainID),
		confirmTimeout:  opts.ConfirmTimeout,
		confirmInterval: opts.ConfirmInterval,
	}
}

// Ping checks that the RPC endpoint is reachable and answering.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.client.callString(ctx, "eth_blockNumber")
	return err
}

// FindByTag returns the token ids of every dataset carrying the tag. An empty
// result is a normal outcome, not an error.
func (r *Registry) FindByTag(ctx context.Context, tag string) ([]uint64, error) {
	data, err := encodeCall("findByTag(string)", tag)
	if err != nil {
		return nil, err
	}
	out, err := r.client.ethCall(ctx, r.contract, data)
	if err != nil {
		return nil, err
	}
	dec := &decoder{data: out}
	ids, err := dec.uintSlice()
	if err != nil {
		return nil, fmt.Errorf("ledger: findByTag: %w", err)
	}
	tokenIDs := make([]uint64, len(ids))
	for i, id := range ids {
		tokenIDs[i] = id.Uint64()
	}
	return tokenIDs, nil
}

// Metadata fetches the on-chain record for one dataset token.
func (r *Registry) Metadata(ctx context.Context, tokenID uint64) (*model.Dataset, error) {
	data, err := encodeCall("getMetadata(uint256)", tokenID)
	if err != nil {
		return nil, err
	}
	out, err := r.client.ethCall(ctx, r.contract, data)
	if err != nil {
		return nil, err
	}

	// Return tuple: (string name, string description, string contentHash,
	// string contentLocator, uint256 price, string[] tags). Offsets in the
	// head are relative to the start of the tuple, which for a top-level
	// return is the start of the data.
	dec := &decoder{data: out}
	ds := &model.Dataset{TokenID: tokenID}
	if ds.Name, err = dec.stringField(0, 0); err != nil {
		return nil, fmt.Errorf("ledger: getMetadata name: %w", err)
	}
	if ds.Description, err = dec.stringField(1, 0); err != nil {
		return nil, fmt.Errorf("ledger: getMetadata description: %w", err)
	}
	if ds.ContentHash, err = dec.stringField(2, 0); err != nil {
		return nil, fmt.Errorf("ledger: getMetadata contentHash: %w", err)
	}
	if ds.ContentLocator, err = dec.stringField(3, 0); err != nil {
		return nil, fmt.Errorf("ledger: getMetadata contentLocator: %w", err)
	}
	if ds.Price, err = dec.uint(4); err != nil {
		return nil, fmt.Errorf("ledger: getMetadata price: %w", err)
	}
	tagsOff, err := dec.uint(5)
	if err != nil {
		return nil, fmt.Errorf("ledger: getMetadata tags: %w", err)
	}
	if ds.Tags, err = dec.stringSliceAt(int(tagsOff.Int64())); err != nil {
		return nil, fmt.Errorf("ledger: getMetadata tags: %w", err)
	}
	return ds, nil
}

// BalanceOf returns the dataset token balance held by address.
func (r *Registry) BalanceOf(ctx context.Context, address string, tokenID uint64) (*big.Int, error) {
	data, err := encodeCall("balanceOf(address,uint256)", address, tokenID)
	if err != nil {
		return nil, err
	}
	out, err := r.client.ethCall(ctx, r.contract, data)
	if err != nil {
		return nil, err
	}
	dec := &decoder{data: out}
	return dec.uint(0)
}

// HasPurchased reports whether the registry has recorded a purchase of the
// dataset by address. Free or granted datasets may set this without any
// balance transfer.
func (r *Registry) HasPurchased(ctx context.Context, address string, tokenID uint64) (bool, error) {
	data, err := encodeCall("hasPurchased(address,uint256)", address, tokenID)
	if err != nil {
		return false, err
	}
	out, err := r.client.ethCall(ctx, r.contract, data)
	if err != nil {
		return false, err
	}
	dec := &decoder{data: out}
	return dec.bool(0)
}

// NativeBalance returns the chain-native balance of address in its smallest
// unit.
func (r *Registry) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	out, err := r.client.callString(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return nil, err
	}
	return hexBig(out)
}

// Purchase submits a purchase transaction for tokenID, paying value from the
// given account key. It returns the transaction hash without waiting for the
// transaction to be mined; callers follow up with AwaitConfirmation.
func (r *Registry) Purchase(ctx context.Context, priv *secp256k1.PrivateKey, tokenID uint64, value *big.Int) (string, error) {
	from := addressOf(priv)

	nonceHex, err := r.client.callString(ctx, "eth_getTransactionCount", from, "pending")
	if err != nil {
		return "", err
	}
	nonce, err := hexUint64(nonceHex)
	if err != nil {
		return "", err
	}

	gasPriceHex, err := r.client.callString(ctx, "eth_gasPrice")
	if err != nil {
		return "", err
	}
	gasPrice, err := hexBig(gasPriceHex)
	if err != nil {
		return "", err
	}

	data, err := encodeCall("purchase(uint256)", tokenID)
	if err != nil {
		return "", err
	}

	gas := r.estimateGas(ctx, from, value, data)

	to, err := hexBytes(r.contract)
	if err != nil || len(to) != 20 {
		return "", fmt.Errorf("ledger: invalid contract address %q", r.contract)
	}

	raw, txHash, err := signTx(&legacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Value:    value,
		Data:     data,
	}, r.chainID, priv)
	if err != nil {
		return "", err
	}

	sent, err := r.client.callString(ctx, "eth_sendRawTransaction", "0x"+hex.EncodeToString(raw))
	if err != nil {
		return "", err
	}
	if sent == "" {
		sent = "0x" + hex.EncodeToString(txHash)
	}
	return sent, nil
}

// estimateGas asks the node for a gas estimate and falls back to a fixed
// limit when the node declines.
func (r *Registry) estimateGas(ctx context.Context, from string, value *big.Int, data []byte) uint64 {
	arg := map[string]string{
		"from":  from,
		"to":    r.contract,
		"value": bigHex(value),
		"data":  "0x" + hex.EncodeToString(data),
	}
	out, err := r.client.callString(ctx, "eth_estimateGas", arg)
	if err != nil {
		return defaultGasLimit
	}
	gas, err := hexUint64(out)
	if err != nil || gas == 0 {
		return defaultGasLimit
	}
	// Headroom for estimates taken against stale state.
	return gas + gas/5
}

// Receipt is the confirmed-transaction summary returned by AwaitConfirmation.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
}

// AwaitConfirmation polls for the transaction receipt until the transaction
// is mined, the confirmation window elapses (ErrConfirmationTimeout), or ctx
// is cancelled. A mined-but-reverted transaction returns ErrReverted.
func (r *Registry) AwaitConfirmation(ctx context.Context, txHash string) (*Receipt, error) {
	deadline := time.NewTimer(r.confirmTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(r.confirmInterval)
	defer tick.Stop()

	for {
		receipt, err := r.receipt(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s after %s", ErrConfirmationTimeout, txHash, r.confirmTimeout)
		case <-tick.C:
		}
	}
}

// receipt fetches the transaction receipt, returning (nil, nil) while the
// transaction is pending.
func (r *Registry) receipt(ctx context.Context, txHash string) (*Receipt, error) {
	raw, err := r.client.Call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}

	var rec struct {
		Status      string `json:"status"`
		BlockNumber string `json:"blockNumber"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil || rec.BlockNumber == "" {
		return nil, nil
	}
	if rec.Status != "0x1" {
		return nil, fmt.Errorf("%w: %s", ErrReverted, txHash)
	}
	block, err := hexUint64(rec.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("ledger: invalid block number in receipt: %w", err)
	}
	return &Receipt{TxHash: txHash, BlockNumber: block}, nil
}

// addressOf derives the EIP-55 account address for a private key.
func addressOf(priv *secp256k1.PrivateKey) string {
	uncompressed := priv.PubKey().SerializeUncompressed()
	hash := keccak256(uncompressed[1:])
	return "0x" + hex.EncodeToString(hash[12:])
}
