package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Storage backends for the token registry and cursors.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Telegram configuration
	TelegramBotToken     string
	TelegramChatID       int64
	TelegramAdminChatIDs []int64

	// Solana configuration
	SolanaRPCURLs []string

	// Storage configuration
	StorageBackend string
	DataDir        string
	DatabaseURL    string

	// NATS configuration (optional, empty disables publishing)
	NATSURL string

	// Polling configuration
	PollInterval           time.Duration
	SignaturePageLimit     int
	MaxSignaturePages      int
	MaxConcurrentPipelines int
	DispatchMaxAttempts    int

	// Classification thresholds
	MinNativeSpend decimal.Decimal
	MinQuoteValue  decimal.Decimal

	// Enrichment sources
	HTTPTimeout     time.Duration
	DexScreenerURL  string
	TokenListURL    string
	TokenInfoURL    string
	JupiterPriceURL string
	CoinGeckoURL    string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":"+getEnvOrDefault("PORT", "10000"))
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Telegram configuration
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramBotToken == "" {
		errs = append(errs, fmt.Errorf("TELEGRAM_BOT_TOKEN is required"))
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw == "" {
		errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID is required"))
	} else if id, err := strconv.ParseInt(raw, 10, 64); err != nil {
		errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: invalid chat id %q: %w", raw, err))
	} else {
		cfg.TelegramChatID = id
	}

	admins, err := parseInt64List("TELEGRAM_ADMIN_CHAT_IDS")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TelegramAdminChatIDs = admins
	}

	// Solana configuration
	cfg.SolanaRPCURLs = parseList(getEnvOrDefault("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS must list at least one endpoint"))
	}

	// Storage configuration
	cfg.StorageBackend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StorageFile))
	cfg.DataDir = getEnvOrDefault("DATA_DIR", "./data")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	switch cfg.StorageBackend {
	case StorageFile:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND: unknown backend %q (want file or postgres)", cfg.StorageBackend))
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	// Polling configuration
	if cfg.PollInterval, err = parseDuration("POLL_INTERVAL", "3s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.SignaturePageLimit, err = parseInt("SIGNATURE_PAGE_LIMIT", 10); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxSignaturePages, err = parseInt("MAX_SIGNATURE_PAGES", 10); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxConcurrentPipelines, err = parseInt("MAX_CONCURRENT_PIPELINES", 8); err != nil {
		errs = append(errs, err)
	}
	if cfg.DispatchMaxAttempts, err = parseInt("DISPATCH_MAX_ATTEMPTS", 3); err != nil {
		errs = append(errs, err)
	}

	// Classification thresholds
	if cfg.MinNativeSpend, err = parseDecimal("MIN_NATIVE_SPEND", "0"); err != nil {
		errs = append(errs, err)
	}
	if cfg.MinQuoteValue, err = parseDecimal("MIN_QUOTE_VALUE", "0"); err != nil {
		errs = append(errs, err)
	}

	// Enrichment sources
	if cfg.HTTPTimeout, err = parseDuration("HTTP_TIMEOUT", "10s"); err != nil {
		errs = append(errs, err)
	}
	cfg.DexScreenerURL = getEnvOrDefault("DEXSCREENER_URL", "https://api.dexscreener.com")
	cfg.TokenListURL = getEnvOrDefault("TOKEN_LIST_URL",
		"https://raw.githubusercontent.com/solana-labs/token-list/main/src/tokens/solana.tokenlist.json")
	cfg.TokenInfoURL = getEnvOrDefault("TOKEN_INFO_URL", "https://lite-api.jup.ag/tokens/v1/token")
	cfg.JupiterPriceURL = getEnvOrDefault("JUPITER_PRICE_URL", "https://lite-api.jup.ag/price/v2")
	cfg.CoinGeckoURL = getEnvOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks value ranges. Load calls it after parsing; tests can call it
// on hand-built configs.
func (c *Config) Validate() error {
	var errs []error

	if c.TelegramBotToken == "" {
		errs = append(errs, fmt.Errorf("TelegramBotToken is required"))
	}
	if c.TelegramChatID == 0 {
		errs = append(errs, fmt.Errorf("TelegramChatID is required"))
	}
	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}
	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 1 second"))
	}
	if c.SignaturePageLimit < 1 || c.SignaturePageLimit > 1000 {
		errs = append(errs, fmt.Errorf("SignaturePageLimit must be between 1 and 1000"))
	}
	if c.MaxSignaturePages < 1 {
		errs = append(errs, fmt.Errorf("MaxSignaturePages must be at least 1"))
	}
	if c.MaxConcurrentPipelines < 1 {
		errs = append(errs, fmt.Errorf("MaxConcurrentPipelines must be at least 1"))
	}
	if c.DispatchMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("DispatchMaxAttempts must be at least 1"))
	}
	if c.MinNativeSpend.IsNegative() {
		errs = append(errs, fmt.Errorf("MinNativeSpend cannot be negative"))
	}
	if c.MinQuoteValue.IsNegative() {
		errs = append(errs, fmt.Errorf("MinQuoteValue cannot be negative"))
	}
	if c.StorageBackend == StoragePostgres && c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required for the postgres backend"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// IsAdmin reports whether chatID may change the tracked token list.
func (c *Config) IsAdmin(chatID int64) bool {
	if chatID == c.TelegramChatID {
		return true
	}
	for _, id := range c.TelegramAdminChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := getEnvOrDefault(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, value, err)
	}
	return d, nil
}

// parseList splits a comma separated value, dropping blanks.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt64List(key string) ([]int64, error) {
	var out []int64
	for _, part := range parseList(os.Getenv(key)) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid chat id %q: %w", key, part, err)
		}
		out = append(out, id)
	}
	return out, nil
}
