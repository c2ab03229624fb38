// Package price quotes SOL in USD from a primary aggregator with a single
// market-data fallback.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/buywatch/service/metrics"
	"github.com/brojonat/buywatch/service/solana"
	"github.com/shopspring/decimal"
)

// Source returns the current USD price of SOL.
type Source interface {
	Name() string
	Price(ctx context.Context) (decimal.Decimal, error)
}

// Oracle asks the primary source and, if that fails, the fallback once.
// A successful quote is reused for ttl.
type Oracle struct {
	primary  Source
	fallback Source
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	cached   decimal.Decimal
	cachedAt time.Time
	now      func() time.Time
}

// NewOracle creates an oracle. fallback may be nil. ttl of zero disables caching.
func NewOracle(primary, fallback Source, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Oracle {
	return &Oracle{
		primary:  primary,
		fallback: fallback,
		ttl:      ttl,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// QuotePrice never fails. Zero means the price is unknown.
func (o *Oracle) QuotePrice(ctx context.Context) decimal.Decimal {
	o.mu.Lock()
	if o.ttl > 0 && o.cached.IsPositive() && o.now().Sub(o.cachedAt) < o.ttl {
		p := o.cached
		o.mu.Unlock()
		return p
	}
	o.mu.Unlock()

	for _, src := range []Source{o.primary, o.fallback} {
		if src == nil {
			continue
		}
		p, err := o.ask(ctx, src)
		if err != nil {
			o.logger.WarnContext(ctx, "price source failed", "source", src.Name(), "error", err)
			continue
		}

		o.mu.Lock()
		o.cached, o.cachedAt = p, o.now()
		o.mu.Unlock()
		return p
	}

	o.logger.ErrorContext(ctx, "all price sources failed, price unknown")
	return decimal.Zero
}

func (o *Oracle) ask(ctx context.Context, src Source) (p decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("price source panicked: %v", r)
		}
		o.metrics.RecordPriceLookup(src.Name(), err)
	}()

	p, err = src.Price(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", p)
	}
	return p, nil
}

// JupiterSource reads the price API: GET {base}?ids={mint}.
type JupiterSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewJupiterSource creates the primary price source.
func NewJupiterSource(baseURL string, httpClient *http.Client) *JupiterSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &JupiterSource{baseURL: baseURL, httpClient: httpClient}
}

func (s *JupiterSource) Name() string { return "jupiter" }

func (s *JupiterSource) Price(ctx context.Context) (decimal.Decimal, error) {
	mint := solana.WrappedSOLMint.String()
	body, err := get(ctx, s.httpClient, s.baseURL+"?ids="+url.QueryEscape(mint))
	if err != nil {
		return decimal.Zero, err
	}
	if !json.Valid(body) {
		return decimal.Zero, errors.New("response is not valid JSON")
	}

	var resp struct {
		Data map[string]*struct {
			Price decimal.NullDecimal `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}
	entry := resp.Data[mint]
	if entry == nil || !entry.Price.Valid {
		return decimal.Zero, errors.New("no price for SOL in response")
	}
	return entry.Price.Decimal, nil
}

// CoinGeckoSource reads /simple/price for solana in usd.
type CoinGeckoSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoSource creates the fallback price source.
func NewCoinGeckoSource(baseURL string, httpClient *http.Client) *CoinGeckoSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CoinGeckoSource{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

func (s *CoinGeckoSource) Price(ctx context.Context) (decimal.Decimal, error) {
	body, err := get(ctx, s.httpClient, s.baseURL+"/simple/price?ids=solana&vs_currencies=usd")
	if err != nil {
		return decimal.Zero, err
	}

	var resp map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}
	p, ok := resp["solana"]["usd"]
	if !ok {
		return decimal.Zero, errors.New("no solana/usd price in response")
	}
	return p, nil
}

func get(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}
