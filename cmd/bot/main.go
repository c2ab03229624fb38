package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/brojonat/buywatch/service/classifier"
	"github.com/brojonat/buywatch/service/config"
	"github.com/brojonat/buywatch/service/cursor"
	"github.com/brojonat/buywatch/service/db"
	"github.com/brojonat/buywatch/service/dexscreener"
	"github.com/brojonat/buywatch/service/metadata"
	"github.com/brojonat/buywatch/service/metrics"
	"github.com/brojonat/buywatch/service/nats"
	"github.com/brojonat/buywatch/service/poller"
	"github.com/brojonat/buywatch/service/price"
	"github.com/brojonat/buywatch/service/registry"
	"github.com/brojonat/buywatch/service/server"
	"github.com/brojonat/buywatch/service/solana"
	"github.com/brojonat/buywatch/service/telegram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	tokenListTTL = time.Hour
	priceTTL     = 30 * time.Second
	sendTries    = 3
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting buywatch",
		"addr", cfg.ServerAddr,
		"storage", cfg.StorageBackend,
		"poll_interval", cfg.PollInterval,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(promRegistry)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// One endpoint is picked per process to spread load across providers.
	endpoint, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
	if err != nil {
		logger.Error("failed to select RPC endpoint", "error", err)
		os.Exit(1)
	}
	solClient := solana.NewClient(
		solana.NewRPCClient(endpoint),
		solana.EndpointLabel(endpoint),
		m,
		logger.With("component", "solana"),
	)
	logger.Info("initialized solana RPC client",
		"endpoint", solana.EndpointLabel(endpoint),
		"total_endpoints", len(cfg.SolanaRPCURLs),
	)

	var (
		tokenBackend registry.Backend
		cursorStore  cursor.Store
	)
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store := db.NewStore(pool, m)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		tokenBackend, cursorStore = store, store
		logger.Info("connected to database")
	default:
		tokenBackend = registry.NewFileBackend(filepath.Join(cfg.DataDir, "added_tokens.txt"))
		cursorStore = cursor.NewFileStore(filepath.Join(cfg.DataDir, "cursors.json"))
		logger.Info("using file storage", "data_dir", cfg.DataDir)
	}

	tokens := registry.New(tokenBackend, logger.With("component", "registry"))
	if err := tokens.Load(ctx); err != nil {
		logger.Error("failed to load tracked tokens", "error", err)
		os.Exit(1)
	}
	m.SetTrackedTokens(tokens.Len())

	tracker := cursor.NewTracker(solClient, cursorStore, cursor.Options{
		PageLimit: cfg.SignaturePageLimit,
		MaxPages:  cfg.MaxSignaturePages,
	}, logger.With("component", "cursor"))
	if err := tracker.Load(ctx); err != nil {
		// Starting without cursors only means each token re-reports its latest tx.
		logger.Warn("failed to load cursors, starting fresh", "error", err)
	}

	// One pairs request per alert serves both the name and the market cap.
	dex := dexscreener.NewCachedClient(
		dexscreener.NewClient(cfg.DexScreenerURL, httpClient, logger.With("component", "dexscreener")),
		dexscreener.DefaultCacheTTL,
	)
	resolver := metadata.NewResolver([]metadata.Source{
		metadata.NewDexScreenerSource(dex),
		metadata.NewTokenListSource(cfg.TokenListURL, httpClient, tokenListTTL, logger.With("component", "tokenlist")),
		metadata.NewOnChainSource(solClient),
		metadata.NewTokenInfoSource(cfg.TokenInfoURL, httpClient),
	}, m, logger.With("component", "metadata"))

	oracle := price.NewOracle(
		price.NewJupiterSource(cfg.JupiterPriceURL, httpClient),
		price.NewCoinGeckoSource(cfg.CoinGeckoURL, httpClient),
		priceTTL,
		m,
		logger.With("component", "price"),
	)

	bot, err := telegram.NewBot(cfg.TelegramBotToken, nil)
	if err != nil {
		logger.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}
	sender := telegram.NewSender(bot, cfg.TelegramChatID, sendTries, logger.With("component", "telegram"))
	commands := telegram.NewCommands(bot, tokens, tracker, cfg.IsAdmin, m, logger.With("component", "commands"))

	var publisher nats.Publisher
	if cfg.NATSURL != "" {
		p, err := nats.NewPublisher(ctx, cfg.NATSURL, m, logger.With("component", "nats"))
		if err != nil {
			logger.Warn("NATS unavailable, buy events will not be published", "error", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	orchestrator := poller.New(poller.Config{
		Interval:            cfg.PollInterval,
		MaxConcurrent:       cfg.MaxConcurrentPipelines,
		DispatchMaxAttempts: cfg.DispatchMaxAttempts,
	}, poller.Deps{
		Tokens:       tokens,
		Cursors:      tracker,
		Transactions: solClient,
		Classifier:   classifier.New(classifier.Thresholds{MinNativeSpend: cfg.MinNativeSpend, MinQuoteValue: cfg.MinQuoteValue}, oracle),
		Identities:   resolver,
		MarketCaps:   dex,
		Dispatcher:   sender,
		Publisher:    publisher,
		Metrics:      m,
	}, logger.With("component", "poller"))

	httpServer := server.New(cfg.ServerAddr, tokens, tracker, promRegistry, m, logger.With("component", "server"))

	logger.Info("all dependencies ready", "tracked_tokens", tokens.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orchestrator.Run(gctx)
	})
	g.Go(func() error {
		if err := commands.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("buywatch stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
