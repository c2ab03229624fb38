// Package poller drives the watch loop: every tick it walks each tracked
// token's new transactions, alerts on buys and moves the token's cursor.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/brojonat/buywatch/service/alert"
	"github.com/brojonat/buywatch/service/classifier"
	"github.com/brojonat/buywatch/service/cursor"
	"github.com/brojonat/buywatch/service/metadata"
	"github.com/brojonat/buywatch/service/metrics"
	"github.com/brojonat/buywatch/service/nats"
	"github.com/brojonat/buywatch/service/solana"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// TokenLister returns a snapshot of the tracked tokens.
type TokenLister interface {
	List() []string
}

// Cursors is the watermark state the pipeline reads and advances.
type Cursors interface {
	Mark(token string) cursor.Mark
	Pending(ctx context.Context, token, since string) ([]string, error)
	CompareAndAdvance(ctx context.Context, token string, expected cursor.Mark, signature string) (cursor.Mark, bool)
}

// TransactionSource fetches one confirmed transaction; (nil, nil) means unknown.
type TransactionSource interface {
	Transaction(ctx context.Context, signature string) (*solana.TransactionRecord, error)
}

type Classifier interface {
	Classify(ctx context.Context, rec *solana.TransactionRecord, mint string) classifier.Result
}

type IdentityResolver interface {
	Resolve(ctx context.Context, mint string) metadata.Identity
}

type MarketCapSource interface {
	MarketCap(ctx context.Context, mint string) (decimal.Decimal, error)
}

// Config tunes the loop.
type Config struct {
	Interval            time.Duration
	MaxConcurrent       int
	DispatchMaxAttempts int
}

// Deps are the collaborators of the orchestrator. MarketCaps and Publisher
// may be nil.
type Deps struct {
	Tokens       TokenLister
	Cursors      Cursors
	Transactions TransactionSource
	Classifier   Classifier
	Identities   IdentityResolver
	MarketCaps   MarketCapSource
	Dispatcher   alert.Dispatcher
	Publisher    nats.Publisher
	Metrics      *metrics.Metrics
}

// Orchestrator runs one pipeline per token per tick. A token whose previous
// pipeline is still running is skipped rather than queued.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	running  map[string]bool
	attempts map[string]map[string]int // token -> signature -> failed dispatches

	ticks sync.WaitGroup
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.DispatchMaxAttempts <= 0 {
		cfg.DispatchMaxAttempts = 3
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		running:  make(map[string]bool),
		attempts: make(map[string]map[string]int),
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight ticks. A slow
// tick never delays the next one.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "starting poll loop",
		"interval", o.cfg.Interval,
		"max_concurrent", o.cfg.MaxConcurrent,
	)

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	o.launchTick(ctx)
	for {
		select {
		case <-ctx.Done():
			o.ticks.Wait()
			o.logger.Info("poll loop stopped")
			return nil
		case <-ticker.C:
			o.launchTick(ctx)
		}
	}
}

func (o *Orchestrator) launchTick(ctx context.Context) {
	o.ticks.Add(1)
	go func() {
		defer o.ticks.Done()
		o.Tick(ctx)
	}()
}

// Tick runs the pipelines for the current token snapshot and returns when
// they are done.
func (o *Orchestrator) Tick(ctx context.Context) {
	tokens := o.deps.Tokens.List()
	o.deps.Metrics.SetTrackedTokens(len(tokens))
	o.pruneFailures(tokens)

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrent)

	for _, token := range tokens {
		if !o.claim(token) {
			o.deps.Metrics.RecordPipelineSkipped(token)
			o.logger.DebugContext(ctx, "previous pipeline still running, skipping token", "token", token)
			continue
		}
		g.Go(func() error {
			defer o.release(token)
			o.runPipeline(ctx, token)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) claim(token string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[token] {
		return false
	}
	o.running[token] = true
	return true
}

func (o *Orchestrator) release(token string) {
	o.mu.Lock()
	delete(o.running, token)
	o.mu.Unlock()
}

func (o *Orchestrator) runPipeline(ctx context.Context, token string) {
	logger := o.logger.With("token", token)
	start := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panicked: %v", r)
		}
		if err != nil {
			logger.ErrorContext(ctx, "token pipeline failed", "error", err)
		}
		o.deps.Metrics.RecordPipelineDuration(token, time.Since(start).Seconds(), err)
	}()

	mark := o.deps.Cursors.Mark(token)
	pending, err := o.deps.Cursors.Pending(ctx, token, mark.Signature)
	if err != nil {
		err = fmt.Errorf("failed to list signatures: %w", err)
		return
	}

	for _, sig := range pending {
		if ctx.Err() != nil {
			return
		}
		if !o.process(ctx, logger, token, sig) {
			return
		}
		next, ok := o.deps.Cursors.CompareAndAdvance(ctx, token, mark, sig)
		if !ok {
			logger.InfoContext(ctx, "cursor moved or forgotten since the pipeline started, stopping",
				"expected", mark.Signature,
				"signature", sig,
			)
			return
		}
		mark = next
	}
}

// process handles one signature and reports whether the cursor may move past it.
func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, token, sig string) bool {
	logger = logger.With("signature", sig)

	var res classifier.Result
	rec, err := o.deps.Transactions.Transaction(ctx, sig)
	if err != nil {
		res = classifier.Result{Reason: classifier.ReasonLookupError, Err: err}
	} else {
		res = o.deps.Classifier.Classify(ctx, rec, token)
	}
	o.deps.Metrics.RecordClassification(token, string(res.Reason))

	if !res.IsBuy() {
		if res.Err != nil {
			logger.WarnContext(ctx, "could not classify transaction, skipping", "error", res.Err)
		} else {
			logger.DebugContext(ctx, "not a buy", "reason", res.Reason)
		}
		return true
	}

	o.deps.Metrics.RecordBuyDetected(token)
	a := o.enrich(ctx, logger, *res.Event)

	err = o.deps.Dispatcher.Send(ctx, alert.FormatMessage(a))
	o.deps.Metrics.RecordAlert(token, err)
	if err != nil {
		n := o.noteFailure(token, sig)
		if n >= o.cfg.DispatchMaxAttempts {
			logger.ErrorContext(ctx, "giving up on alert after repeated failures",
				"attempts", n,
				"error", err,
			)
			o.clearFailures(token, sig)
			return true
		}
		logger.WarnContext(ctx, "failed to send alert, will retry next tick",
			"attempt", n,
			"error", err,
		)
		return false
	}
	o.clearFailures(token, sig)

	logger.InfoContext(ctx, "buy alert sent",
		"buyer", a.Buyer,
		"native_spent", a.NativeSpent.String(),
	)

	if o.deps.Publisher != nil {
		if err := o.deps.Publisher.PublishBuy(ctx, nats.FromAlert(a)); err != nil {
			logger.WarnContext(ctx, "failed to publish buy event", "error", err)
		}
	}
	return true
}

// enrich never fails; missing data becomes placeholders.
func (o *Orchestrator) enrich(ctx context.Context, logger *slog.Logger, ev alert.BuyEvent) alert.Alert {
	a := alert.Alert{BuyEvent: ev}

	if o.deps.Identities != nil {
		id := o.deps.Identities.Resolve(ctx, ev.Token)
		a.Name, a.Symbol = id.Name, id.Symbol
	}

	a.MarketCap = alert.NotAvailable
	if o.deps.MarketCaps != nil {
		mcap, err := o.deps.MarketCaps.MarketCap(ctx, ev.Token)
		if err != nil {
			logger.DebugContext(ctx, "market cap lookup failed", "error", err)
		} else {
			a.MarketCap = alert.FormatMarketCap(mcap)
		}
	}
	return a
}

func (o *Orchestrator) noteFailure(token, sig string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempts[token] == nil {
		o.attempts[token] = make(map[string]int)
	}
	o.attempts[token][sig]++
	return o.attempts[token][sig]
}

func (o *Orchestrator) clearFailures(token, sig string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.attempts[token], sig)
	if len(o.attempts[token]) == 0 {
		delete(o.attempts, token)
	}
}

// pruneFailures drops attempt counts of tokens no longer tracked.
func (o *Orchestrator) pruneFailures(tokens []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for token := range o.attempts {
		if !slices.Contains(tokens, token) {
			delete(o.attempts, token)
		}
	}
}
