package dexscreener

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedClient_PairsAndMarketCapShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	cached := NewCachedClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(tokensBody))
	}), time.Minute)
	ctx := context.Background()

	pairs, err := cached.TokenPairs(ctx, mint)
	require.NoError(t, err)
	_, token, ok := BestPair(pairs, mint)
	require.True(t, ok)
	assert.Equal(t, "WIF", token.Symbol)

	mcap, err := cached.MarketCap(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, "2400000000", mcap.String())

	assert.Equal(t, int32(1), hits.Load())
}

func TestCachedClient_RefetchesAfterTTL(t *testing.T) {
	var hits atomic.Int32
	cached := NewCachedClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(tokensBody))
	}), time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := cached.TokenPairs(ctx, mint)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = cached.TokenPairs(ctx, mint)
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
}

func TestCachedClient_ErrorsAreNotCached(t *testing.T) {
	var hits atomic.Int32
	cached := NewCachedClient(newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(tokensBody))
	}), time.Minute)
	ctx := context.Background()

	_, err := cached.MarketCap(ctx, mint)
	require.Error(t, err)

	mcap, err := cached.MarketCap(ctx, mint)
	require.NoError(t, err)
	assert.True(t, mcap.IsPositive())
	assert.Equal(t, int32(2), hits.Load())
}
