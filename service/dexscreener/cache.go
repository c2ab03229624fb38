package dexscreener

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL covers the identity and market cap lookups of one alert.
const DefaultCacheTTL = 30 * time.Second

type cachedPairs struct {
	pairs     []Pair
	fetchedAt time.Time
}

// CachedClient shares TokenPairs results per mint for a short TTL.
// Concurrent misses for the same mint wait on one request. Errors are not
// cached.
type CachedClient struct {
	client *Client
	ttl    time.Duration

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]cachedPairs
	now     func() time.Time
}

// NewCachedClient wraps client. A non-positive ttl uses DefaultCacheTTL.
func NewCachedClient(client *Client, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedClient{
		client:  client,
		ttl:     ttl,
		entries: make(map[string]cachedPairs),
		now:     time.Now,
	}
}

// TokenPairs returns mint's pairs, from cache when fresh.
func (c *CachedClient) TokenPairs(ctx context.Context, mint string) ([]Pair, error) {
	if pairs, ok := c.cached(mint); ok {
		return pairs, nil
	}

	v, err, _ := c.group.Do(mint, func() (interface{}, error) {
		if pairs, ok := c.cached(mint); ok {
			return pairs, nil
		}
		pairs, err := c.client.TokenPairs(ctx, mint)
		if err != nil {
			return nil, err
		}
		c.store(mint, pairs)
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Pair), nil
}

// MarketCap is Client.MarketCap over the cached pairs.
func (c *CachedClient) MarketCap(ctx context.Context, mint string) (decimal.Decimal, error) {
	pairs, err := c.TokenPairs(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}
	return MarketCapOf(pairs, mint), nil
}

func (c *CachedClient) cached(mint string) ([]Pair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[mint]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.pairs, true
}

func (c *CachedClient) store(mint string, pairs []Pair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[mint] = cachedPairs{pairs: pairs, fetchedAt: now}
}
