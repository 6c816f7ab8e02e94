// Package fulfillment orchestrates quote redemption: ownership resolution,
// on-chain purchases for unowned datasets, and payload retrieval.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/treenteq/harbor/internal/ledger"
	"github.com/treenteq/harbor/internal/model"
	"github.com/treenteq/harbor/internal/quote"
)

var (
	// ErrNotQuoted is returned when a redemption names a dataset id outside
	// the quoted set. Redemptions must be a subset of what was quoted.
	ErrNotQuoted = errors.New("dataset id was not part of the quote")

	// ErrInsufficientBalance is returned when the wallet cannot cover the
	// aggregate price of all unowned datasets. No purchase is attempted.
	ErrInsufficientBalance = errors.New("insufficient wallet balance for quoted purchases")
)

// Ledger is the slice of chain operations redemption needs.
type Ledger interface {
	BalanceOf(ctx context.Context, address string, tokenID uint64) (*big.Int, error)
	HasPurchased(ctx context.Context, address string, tokenID uint64) (bool, error)
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	Purchase(ctx context.Context, priv *secp256k1.PrivateKey, tokenID uint64, value *big.Int) (string, error)
	AwaitConfirmation(ctx context.Context, txHash string) (*ledger.Receipt, error)
}

// Storage fetches payloads by content locator.
type Storage interface {
	Fetch(ctx context.Context, locator string) (*model.Payload, error)
}

// KeyUnsealer decrypts the custodial private key bound to an API key.
type KeyUnsealer interface {
	WalletKey(key *model.APIKey) (*secp256k1.PrivateKey, error)
}

// Engine drives the redemption flow. Purchases for the same wallet are
// serialized so concurrent redemptions cannot race on the account nonce.
type Engine struct {
	ledger   Ledger
	storage  Storage
	unsealer KeyUnsealer
	quotes   *quote.Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex // wallet address -> purchase lock
}

func NewEngine(l Ledger, s Storage, u KeyUnsealer, quotes *quote.Cache) *Engine {
	return &Engine{
		ledger:   l,
		storage:  s,
		unsealer: u,
		quotes:   quotes,
	}
}

// walletLock returns the purchase mutex for one wallet address.
func (e *Engine) walletLock(address string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks == nil {
		e.locks = make(map[string]*sync.Mutex)
	}
	l, ok := e.locks[address]
	if !ok {
		l = &sync.Mutex{}
		e.locks[address] = l
	}
	return l
}

// Redeem resolves a quote token plus a dataset-id list into per-dataset
// outcomes. Quote validity, subset membership, and aggregate affordability
// are checked before any purchase transaction is issued; after that point,
// failures are captured per dataset and never abort siblings.
//
// Quote-validity failures surface quote.ErrExpired; subset violations
// surface ErrNotQuoted; affordability failures surface
// ErrInsufficientBalance with zero transactions issued.
func (e *Engine) Redeem(ctx context.Context, key *model.APIKey, quoteToken string, tokenIDs []uint64) ([]model.PurchaseResult, error) {
	q, err := e.quotes.Get(quoteToken)
	if err != nil {
		return nil, err
	}

	quoted := make(map[uint64]model.Dataset, len(q.Datasets))
	for _, ds := range q.Datasets {
		quoted[ds.TokenID] = ds
	}

	// Repeated ids collapse to one entry: each dataset gets at most one
	// purchase attempt per redemption, whatever the request repeats.
	datasets := make([]model.Dataset, 0, len(tokenIDs))
	seen := make(map[uint64]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		ds, ok := quoted[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrNotQuoted, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		datasets = append(datasets, ds)
	}

	results := make([]model.PurchaseResult, len(datasets))
	for i, ds := range datasets {
		results[i] = model.PurchaseResult{TokenID: ds.TokenID}
	}

	// Ownership pass. A ledger failure here marks the dataset failed but
	// does not abort the batch.
	toPurchase := make([]int, 0, len(datasets))
	for i, ds := range datasets {
		owned, err := e.owns(ctx, key.WalletAddress, ds.TokenID)
		if err != nil {
			results[i].Error = fmt.Sprintf("ownership check failed: %v", err)
			continue
		}
		if owned {
			results[i].AlreadyOwned = true
			continue
		}
		toPurchase = append(toPurchase, i)
	}

	if len(toPurchase) > 0 {
		if err := e.purchaseAll(ctx, key, datasets, results, toPurchase); err != nil {
			return nil, err
		}
	}

	e.fetchPayloads(ctx, datasets, results)
	return results, nil
}

// owns reports whether the wallet holds a balance of or has a recorded
// purchase for the dataset token.
func (e *Engine) owns(ctx context.Context, address string, tokenID uint64) (bool, error) {
	bal, err := e.ledger.BalanceOf(ctx, address, tokenID)
	if err != nil {
		return false, err
	}
	if bal.Sign() > 0 {
		return true, nil
	}
	return e.ledger.HasPurchased(ctx, address, tokenID)
}

// purchaseAll checks aggregate affordability and then buys each unowned
// dataset sequentially under the wallet's purchase lock. The purchase phase
// deliberately outlives request cancellation: once a transaction may have
// been issued, abandoning the wait would lose track of spent funds.
func (e *Engine) purchaseAll(ctx context.Context, key *model.APIKey, datasets []model.Dataset, results []model.PurchaseResult, toPurchase []int) error {
	total := new(big.Int)
	for _, i := range toPurchase {
		if datasets[i].Price != nil {
			total.Add(total, datasets[i].Price)
		}
	}

	balance, err := e.ledger.NativeBalance(ctx, key.WalletAddress)
	if err != nil {
		return fmt.Errorf("read wallet balance: %w", err)
	}
	if balance.Cmp(total) < 0 {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, total, balance)
	}

	priv, err := e.unsealer.WalletKey(key)
	if err != nil {
		return err
	}

	lock := e.walletLock(key.WalletAddress)
	lock.Lock()
	defer lock.Unlock()

	purchaseCtx := context.WithoutCancel(ctx)
	for _, i := range toPurchase {
		ds := datasets[i]
		price := ds.Price
		if price == nil {
			price = new(big.Int)
		}

		txHash, err := e.ledger.Purchase(purchaseCtx, priv, ds.TokenID, price)
		if err != nil {
			results[i].Error = fmt.Sprintf("purchase failed: %v", err)
			continue
		}
		results[i].TxHash = txHash

		if _, err := e.ledger.AwaitConfirmation(purchaseCtx, txHash); err != nil {
			// Submitted but unconfirmed (or reverted): never treat as
			// settled, never release the payload.
			results[i].Error = fmt.Sprintf("confirmation failed: %v", err)
			continue
		}
		results[i].Purchased = true
	}
	return nil
}

// fetchPayloads retrieves payloads for every dataset that is owned or was
// just purchased. Fetches are independent reads and run concurrently; a
// failure is recorded on that dataset only.
func (e *Engine) fetchPayloads(ctx context.Context, datasets []model.Dataset, results []model.PurchaseResult) {
	var wg sync.WaitGroup
	for i := range results {
		if !results[i].AlreadyOwned && !results[i].Purchased {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, err := e.storage.Fetch(ctx, datasets[i].ContentLocator)
			if err != nil {
				results[i].Error = fmt.Sprintf("payload fetch failed: %v", err)
				return
			}
			results[i].Payload = payload
		}(i)
	}
	wg.Wait()
}
