// Package dexscreener is a small client for the DexScreener public API.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.dexscreener.com"

const solanaChain = "solana"

// TokensResponse is the body of /latest/dex/tokens/{address}.
type TokensResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair is one trading pair.
type Pair struct {
	ChainID     string          `json:"chainId"`
	DexID       string          `json:"dexId"`
	URL         string          `json:"url"`
	PairAddress string          `json:"pairAddress"`
	BaseToken   Token           `json:"baseToken"`
	QuoteToken  Token           `json:"quoteToken"`
	PriceUSD    string          `json:"priceUsd"`
	Liquidity   *Liquidity      `json:"liquidity,omitempty"`
	FDV         decimal.Decimal `json:"fdv"`
	MarketCap   decimal.Decimal `json:"marketCap"`
}

// Token identifies one side of a pair.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Liquidity is the pooled value of a pair.
type Liquidity struct {
	USD   decimal.Decimal `json:"usd"`
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// Client talks to the DexScreener API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. baseURL may be empty for the public API.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// TokenPairs returns the Solana pairs that trade mint.
func (c *Client) TokenPairs(ctx context.Context, mint string) ([]Pair, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, url.PathEscape(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("dexscreener returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out TokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	pairs := out.Pairs[:0]
	for _, p := range out.Pairs {
		if p.ChainID == "" || p.ChainID == solanaChain {
			pairs = append(pairs, p)
		}
	}
	c.logger.DebugContext(ctx, "fetched dexscreener pairs", "mint", mint, "pairs", len(pairs))
	return pairs, nil
}

// BestPair returns the most liquid pair in which mint is the base or quote
// token, along with mint's side of it.
func BestPair(pairs []Pair, mint string) (Pair, Token, bool) {
	var (
		best      Pair
		bestToken Token
		found     bool
	)
	for _, p := range pairs {
		var side Token
		switch mint {
		case p.BaseToken.Address:
			side = p.BaseToken
		case p.QuoteToken.Address:
			side = p.QuoteToken
		default:
			continue
		}
		if !found || liquidityOf(p).GreaterThan(liquidityOf(best)) {
			best, bestToken, found = p, side, true
		}
	}
	return best, bestToken, found
}

// MarketCap returns mint's market cap from its most liquid pair, falling back
// to fully diluted value. Zero means unknown.
func (c *Client) MarketCap(ctx context.Context, mint string) (decimal.Decimal, error) {
	pairs, err := c.TokenPairs(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}
	return MarketCapOf(pairs, mint), nil
}

// MarketCapOf picks mint's market cap out of already fetched pairs.
func MarketCapOf(pairs []Pair, mint string) decimal.Decimal {
	pair, _, ok := BestPair(pairs, mint)
	if !ok {
		return decimal.Zero
	}
	// Market cap is quoted for the base token only.
	if pair.BaseToken.Address != mint {
		return decimal.Zero
	}
	if pair.MarketCap.IsPositive() {
		return pair.MarketCap
	}
	return pair.FDV
}

func liquidityOf(p Pair) decimal.Decimal {
	if p.Liquidity == nil {
		return decimal.Zero
	}
	return p.Liquidity.USD
}
