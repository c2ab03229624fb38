package dexscreener

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mint = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"

const tokensBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {
      "chainId": "solana",
      "dexId": "orca",
      "pairAddress": "small",
      "baseToken": {"address": "` + mint + `", "name": "dogwifhat", "symbol": "WIF"},
      "quoteToken": {"address": "So11111111111111111111111111111111111111112", "name": "Wrapped SOL", "symbol": "SOL"},
      "liquidity": {"usd": 1000},
      "marketCap": 111
    },
    {
      "chainId": "solana",
      "dexId": "raydium",
      "pairAddress": "deep",
      "baseToken": {"address": "` + mint + `", "name": "dogwifhat", "symbol": "WIF"},
      "quoteToken": {"address": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "name": "USD Coin", "symbol": "USDC"},
      "liquidity": {"usd": 25000000.5},
      "fdv": 2500000000,
      "marketCap": 2400000000
    },
    {
      "chainId": "ethereum",
      "dexId": "uniswap",
      "pairAddress": "other-chain",
      "baseToken": {"address": "` + mint + `", "name": "imposter", "symbol": "IMP"},
      "quoteToken": {"address": "0x0", "name": "Ether", "symbol": "ETH"},
      "liquidity": {"usd": 99999999999}
    }
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTokenPairs_FiltersOtherChains(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tokensBody))
	})

	pairs, err := client.TokenPairs(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, "/latest/dex/tokens/"+mint, gotPath)
	require.Len(t, pairs, 2)
	for _, p := range pairs {
		assert.Equal(t, "solana", p.ChainID)
	}
}

func TestBestPair_MostLiquid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tokensBody))
	})
	pairs, err := client.TokenPairs(context.Background(), mint)
	require.NoError(t, err)

	pair, token, ok := BestPair(pairs, mint)
	require.True(t, ok)
	assert.Equal(t, "deep", pair.PairAddress)
	assert.Equal(t, "dogwifhat", token.Name)
	assert.Equal(t, "WIF", token.Symbol)

	_, _, ok = BestPair(pairs, "SomethingElse")
	assert.False(t, ok)
}

func TestMarketCap(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tokensBody))
	})

	mcap, err := client.MarketCap(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, "2400000000", mcap.String())
}

func TestMarketCap_NoPairs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
	})

	mcap, err := client.MarketCap(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, mcap.IsZero())
}

func TestTokenPairs_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.TokenPairs(context.Background(), mint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTokenPairs_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := client.TokenPairs(context.Background(), mint)
	assert.Error(t, err)
}
