package quote

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/treenteq/harbor/internal/model"
)

func testDatasets() []model.Dataset {
	return []model.Dataset{
		{TokenID: 1, Name: "q1", Price: big.NewInt(10), Tags: []string{"finance"}},
		{TokenID: 2, Name: "q2", Price: big.NewInt(5), Tags: []string{"finance"}},
	}
}

func TestPutGet(t *testing.T) {
	c := NewCache()

	token, err := c.Put(testDatasets())
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(token) != tokenBytes*2 {
		t.Errorf("token length = %d, want %d hex chars", len(token), tokenBytes*2)
	}

	q, err := c.Get(token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(q.Datasets) != 2 || q.Datasets[0].TokenID != 1 {
		t.Errorf("unexpected datasets: %+v", q.Datasets)
	}

	// Lookups are idempotent within the TTL.
	if _, err := c.Get(token); err != nil {
		t.Errorf("second Get: %v", err)
	}
}

func TestGetUnknownToken(t *testing.T) {
	c := NewCache()
	if _, err := c.Get("no-such-token"); !errors.Is(err, ErrExpired) {
		t.Errorf("got %v, want ErrExpired", err)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCache(WithTTL(10*time.Second), WithClock(clock))

	token, err := c.Put(testDatasets())
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Valid right up to the TTL boundary.
	now = now.Add(10 * time.Second)
	if _, err := c.Get(token); err != nil {
		t.Errorf("Get at TTL boundary: %v", err)
	}

	// One tick past the boundary is expired, indistinguishable from unknown.
	now = now.Add(time.Millisecond)
	if _, err := c.Get(token); !errors.Is(err, ErrExpired) {
		t.Errorf("Get past TTL: got %v, want ErrExpired", err)
	}

	// Lazy eviction removed the entry.
	if c.Len() != 0 {
		t.Errorf("Len = %d after expiry, want 0", c.Len())
	}
}

func TestExpiryIsAbsoluteNotSliding(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCache(WithTTL(10*time.Second), WithClock(clock))

	token, _ := c.Put(testDatasets())

	// Reads must not extend the lifetime.
	for i := 0; i < 5; i++ {
		now = now.Add(2 * time.Second)
		if _, err := c.Get(token); err != nil {
			t.Fatalf("Get at +%ds: %v", (i+1)*2, err)
		}
	}
	now = now.Add(time.Second)
	if _, err := c.Get(token); !errors.Is(err, ErrExpired) {
		t.Errorf("expected absolute expiry, got %v", err)
	}
}

func TestPutSweepsStaleEntries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewCache(WithTTL(10*time.Second), WithClock(clock))

	c.Put(testDatasets())
	c.Put(testDatasets())

	now = now.Add(time.Minute)
	c.Put(testDatasets())

	if c.Len() != 1 {
		t.Errorf("Len = %d after sweep, want 1", c.Len())
	}
}

func TestTokensAreUnique(t *testing.T) {
	c := NewCache()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := c.Put(nil)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token %s", token)
		}
		seen[token] = true
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				token, err := c.Put(testDatasets())
				if err != nil {
					t.Errorf("Put: %v", err)
					return
				}
				if _, err := c.Get(token); err != nil {
					t.Errorf("Get: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
