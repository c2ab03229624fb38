package cursor

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// SignatureSource lists an address's signatures newest first, optionally
// starting below a given signature.
type SignatureSource interface {
	Signatures(ctx context.Context, address, before string, limit int) ([]string, error)
}

// Store persists cursors across restarts. Writes are best effort: the
// in-memory cursor is authoritative for the life of the process.
type Store interface {
	LoadCursors(ctx context.Context) (map[string]string, error)
	SaveCursor(ctx context.Context, token, signature string) error
	DeleteCursor(ctx context.Context, token string) error
}

// Options controls backward pagination in Pending.
type Options struct {
	PageLimit int // signatures requested per page
	MaxPages  int // pages walked before giving up on finding the watermark
}

// DefaultOptions mirrors the page size the bot has always used.
var DefaultOptions = Options{PageLimit: 10, MaxPages: 10}

// Mark is a token's watermark as read at one point in time. Signature is
// empty when the token has no watermark. A mark read before Forget never
// matches afterwards, even when both sides are empty.
type Mark struct {
	Signature string
	epoch     uint64
}

// Tracker remembers, per token, the newest signature already reported.
type Tracker struct {
	mu      sync.Mutex
	cursors map[string]string
	epochs  map[string]uint64 // bumped by Forget

	// storeMu orders store writes with Forget so a late save cannot
	// resurrect a deleted cursor.
	storeMu sync.Mutex

	source SignatureSource
	store  Store
	opts   Options
	logger *slog.Logger
}

// NewTracker creates a tracker. store may be nil to disable persistence.
func NewTracker(source SignatureSource, store Store, opts Options, logger *slog.Logger) *Tracker {
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultOptions.PageLimit
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultOptions.MaxPages
	}
	return &Tracker{
		cursors: make(map[string]string),
		epochs:  make(map[string]uint64),
		source:  source,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// Load restores persisted cursors. Call once before polling starts.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	saved, err := t.store.LoadCursors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cursors: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	maps.Copy(t.cursors, saved)

	t.logger.InfoContext(ctx, "restored cursors", "count", len(saved))
	return nil
}

// Watermark returns the last reported signature for token.
func (t *Tracker) Watermark(token string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.cursors[token]
	return sig, ok
}

// Snapshot returns a copy of all cursors.
func (t *Tracker) Snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.cursors)
}

// Mark returns the current watermark of token for a later CompareAndAdvance.
func (t *Tracker) Mark(token string) Mark {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Mark{Signature: t.cursors[token], epoch: t.epochs[token]}
}

// Advance sets the watermark unconditionally (last write wins).
func (t *Tracker) Advance(ctx context.Context, token, signature string) {
	t.mu.Lock()
	t.cursors[token] = signature
	epoch := t.epochs[token]
	t.mu.Unlock()

	t.persist(ctx, token, signature, epoch)
}

// CompareAndAdvance sets the watermark to signature only if the token is
// still at expected and has not been forgotten since expected was read. On
// success it returns the new mark.
func (t *Tracker) CompareAndAdvance(ctx context.Context, token string, expected Mark, signature string) (Mark, bool) {
	t.mu.Lock()
	if t.epochs[token] != expected.epoch || t.cursors[token] != expected.Signature {
		t.mu.Unlock()
		return expected, false
	}
	t.cursors[token] = signature
	t.mu.Unlock()

	t.persist(ctx, token, signature, expected.epoch)
	return Mark{Signature: signature, epoch: expected.epoch}, true
}

// Forget drops the cursor of a token that is no longer tracked. Marks read
// before the call are invalidated.
func (t *Tracker) Forget(ctx context.Context, token string) {
	t.mu.Lock()
	delete(t.cursors, token)
	t.epochs[token]++
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	t.storeMu.Lock()
	defer t.storeMu.Unlock()
	if err := t.store.DeleteCursor(ctx, token); err != nil {
		t.logger.WarnContext(ctx, "failed to delete persisted cursor",
			"token", token,
			"error", err,
		)
	}
}

// persist writes signature unless the token was forgotten or moved on
// since it was set in memory.
func (t *Tracker) persist(ctx context.Context, token, signature string, epoch uint64) {
	if t.store == nil {
		return
	}
	t.storeMu.Lock()
	defer t.storeMu.Unlock()

	t.mu.Lock()
	current, ok := t.cursors[token]
	stale := !ok || current != signature || t.epochs[token] != epoch
	t.mu.Unlock()
	if stale {
		return
	}

	if err := t.store.SaveCursor(ctx, token, signature); err != nil {
		t.logger.WarnContext(ctx, "failed to persist cursor",
			"token", token,
			"signature", signature,
			"error", err,
		)
	}
}

// Pending returns the signatures newer than since, oldest first.
//
// With no watermark only the single most recent signature is returned, so a
// freshly added token never replays its history. Otherwise pages are walked
// backward until since appears, a short page marks the end of history, or
// MaxPages is reached. In the last case the older remainder is dropped.
func (t *Tracker) Pending(ctx context.Context, token, since string) ([]string, error) {
	if since == "" {
		latest, err := t.source.Signatures(ctx, token, "", 1)
		if err != nil {
			return nil, err
		}
		return latest, nil
	}

	var newestFirst []string
	before := ""
	found := false

	for page := 0; page < t.opts.MaxPages; page++ {
		sigs, err := t.source.Signatures(ctx, token, before, t.opts.PageLimit)
		if err != nil {
			return nil, err
		}

		for _, sig := range sigs {
			if sig == since {
				found = true
				break
			}
			newestFirst = append(newestFirst, sig)
		}

		if found || len(sigs) < t.opts.PageLimit {
			break
		}
		before = sigs[len(sigs)-1]
	}

	if !found && len(newestFirst) > 0 {
		t.logger.WarnContext(ctx, "watermark not found in recent history",
			"token", token,
			"watermark", since,
			"pending", len(newestFirst),
		)
	}

	slices.Reverse(newestFirst)
	return newestFirst, nil
}
