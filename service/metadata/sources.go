package metadata

import (
	"context"
	"encoding/binary"
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

	"github.com/brojonat/buywatch/service/dexscreener"
	"github.com/brojonat/buywatch/service/solana"
	"golang.org/x/sync/singleflight"
)

// PairLookup lists the trading pairs of a mint.
type PairLookup interface {
	TokenPairs(ctx context.Context, mint string) ([]dexscreener.Pair, error)
}

// DexScreenerSource names a token after its side of its most liquid pair.
type DexScreenerSource struct {
	pairs PairLookup
}

// NewDexScreenerSource creates a source backed by the dex aggregator.
func NewDexScreenerSource(pairs PairLookup) *DexScreenerSource {
	return &DexScreenerSource{pairs: pairs}
}

func (s *DexScreenerSource) Name() string { return "dexscreener" }

func (s *DexScreenerSource) Lookup(ctx context.Context, mint string) (Identity, error) {
	pairs, err := s.pairs.TokenPairs(ctx, mint)
	if err != nil {
		return Identity{}, err
	}
	_, token, ok := dexscreener.BestPair(pairs, mint)
	if !ok {
		return Identity{}, ErrNotFound
	}
	return Identity{Name: token.Name, Symbol: token.Symbol}, nil
}

// TokenListSource looks mints up in a community token list. The list is
// cached for ttl and fetched at most once at a time.
type TokenListSource struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration
	logger     *slog.Logger

	group    singleflight.Group
	mu       sync.RWMutex
	index    map[string]Identity
	loadedAt time.Time
	now      func() time.Time
}

// NewTokenListSource creates a token list source.
func NewTokenListSource(listURL string, httpClient *http.Client, ttl time.Duration, logger *slog.Logger) *TokenListSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenListSource{
		url:        listURL,
		httpClient: httpClient,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *TokenListSource) Name() string { return "tokenlist" }

func (s *TokenListSource) Lookup(ctx context.Context, mint string) (Identity, error) {
	index, err := s.tokenIndex(ctx)
	if err != nil {
		return Identity{}, err
	}
	id, ok := index[mint]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return id, nil
}

type tokenList struct {
	Tokens []struct {
		ChainID int    `json:"chainId"`
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"tokens"`
}

// mainnetChainID is the token list's id for Solana mainnet-beta.
const mainnetChainID = 101

func (s *TokenListSource) tokenIndex(ctx context.Context) (map[string]Identity, error) {
	s.mu.RLock()
	index, loadedAt := s.index, s.loadedAt
	s.mu.RUnlock()
	if index != nil && s.now().Sub(loadedAt) < s.ttl {
		return index, nil
	}

	v, err, _ := s.group.Do("tokenlist", func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		if index != nil {
			s.logger.WarnContext(ctx, "token list refresh failed, serving stale copy", "error", err)
			return index, nil
		}
		return nil, err
	}
	return v.(map[string]Identity), nil
}

func (s *TokenListSource) fetch(ctx context.Context) (map[string]Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token list returned status %d", resp.StatusCode)
	}

	var list tokenList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode token list: %w", err)
	}

	index := make(map[string]Identity, len(list.Tokens))
	for _, t := range list.Tokens {
		if t.ChainID != 0 && t.ChainID != mainnetChainID {
			continue
		}
		index[t.Address] = Identity{Name: t.Name, Symbol: t.Symbol}
	}

	s.mu.Lock()
	s.index = index
	s.loadedAt = s.now()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "loaded token list", "tokens", len(index))
	return index, nil
}

// AccountReader returns raw account data, nil when the account is missing.
type AccountReader interface {
	AccountData(ctx context.Context, address string) ([]byte, error)
}

// OnChainSource decodes the Metaplex metadata account of the mint.
type OnChainSource struct {
	accounts AccountReader
}

// NewOnChainSource creates a source that reads metadata accounts.
func NewOnChainSource(accounts AccountReader) *OnChainSource {
	return &OnChainSource{accounts: accounts}
}

func (s *OnChainSource) Name() string { return "onchain" }

func (s *OnChainSource) Lookup(ctx context.Context, mint string) (Identity, error) {
	addr, err := solana.MetadataAddress(mint)
	if err != nil {
		return Identity{}, err
	}
	data, err := s.accounts.AccountData(ctx, addr)
	if err != nil {
		return Identity{}, err
	}
	if data == nil {
		return Identity{}, ErrNotFound
	}
	name, symbol, err := DecodeMetadataAccount(data)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Name: name, Symbol: symbol}, nil
}

// Metadata account layout: key (1), update authority (32), mint (32), then
// borsh strings name (padded to 32) and symbol (padded to 10).
const (
	metadataHeaderLen = 1 + 32 + 32
	maxNameLen        = 32
	maxSymbolLen      = 10
)

// DecodeMetadataAccount extracts the null-padded name and symbol fields.
func DecodeMetadataAccount(data []byte) (name, symbol string, err error) {
	name, off, err := readPaddedString(data, metadataHeaderLen, maxNameLen)
	if err != nil {
		return "", "", fmt.Errorf("name: %w", err)
	}
	symbol, _, err = readPaddedString(data, off, maxSymbolLen)
	if err != nil {
		return "", "", fmt.Errorf("symbol: %w", err)
	}
	return name, symbol, nil
}

func readPaddedString(data []byte, off, maxLen int) (string, int, error) {
	if len(data) < off+4 {
		return "", 0, errors.New("account data too short")
	}
	n := int(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	if n > maxLen || len(data) < off+n {
		return "", 0, fmt.Errorf("invalid string length %d", n)
	}
	s := strings.TrimRight(string(data[off:off+n]), "\x00")
	return s, off + n, nil
}

// TokenInfoSource queries a token info API at {base}/{mint}.
type TokenInfoSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewTokenInfoSource creates a source for a token info API.
func NewTokenInfoSource(baseURL string, httpClient *http.Client) *TokenInfoSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenInfoSource{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (s *TokenInfoSource) Name() string { return "tokeninfo" }

func (s *TokenInfoSource) Lookup(ctx context.Context, mint string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+url.PathEscape(mint), nil)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Identity{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("token info returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read response: %w", err)
	}
	var info struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Identity{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if info.Address == "" && info.Name == "" && info.Symbol == "" {
		return Identity{}, ErrNotFound
	}
	return Identity{Name: info.Name, Symbol: info.Symbol}, nil
}
