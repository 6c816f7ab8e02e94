// Package quote holds short-lived priced offers between the quote and
// redemption endpoints. The cache is an explicitly injected instance, safe
// for concurrent use within one process; entries expire after a fixed TTL
// and are evicted lazily on lookup.
package quote

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/treenteq/harbor/internal/model"
)

// DefaultTTL is how long a quote stays redeemable after issuance. Expiry is
// absolute from creation, never sliding.
const DefaultTTL = 10 * time.Second

const tokenBytes = 32

// ErrExpired is returned when a token is unknown or past its TTL. The two
// cases are indistinguishable to callers on purpose.
var ErrExpired = errors.New("quote: expired or unknown token")

// Quote is one priced offer for a set of datasets.
type Quote struct {
	Token     string
	CreatedAt time.Time
	Datasets  []model.Dataset
}

// Cache is an in-memory token -> quote store.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Quote
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default quote lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock injects a clock, used by tests to simulate expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty quote cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*Quote),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put stores a priced dataset list under a freshly generated token and
// returns the token. Stale entries are swept opportunistically while the
// lock is held.
func (c *Cache) Put(datasets []model.Dataset) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for t, q := range c.entries {
		if now.Sub(q.CreatedAt) > c.ttl {
			delete(c.entries, t)
		}
	}

	c.entries[token] = &Quote{
		Token:     token,
		CreatedAt: now,
		Datasets:  datasets,
	}
	return token, nil
}

// Get returns the quote for token, or ErrExpired if the token is unknown or
// older than the TTL. Expired entries are removed on lookup; a live entry is
// returned as-is, so repeated lookups within the TTL are idempotent.
func (c *Cache) Get(token string) (*Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.entries[token]
	if !ok {
		return nil, ErrExpired
	}
	if c.now().Sub(q.CreatedAt) > c.ttl {
		delete(c.entries, token)
		return nil, ErrExpired
	}
	return q, nil
}

// Len reports the number of retained entries, expired or not. Intended for
// tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("quote: generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
