// Package registry holds the ordered set of token mints the bot watches.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var (
	ErrInvalidAddress = errors.New("invalid token address")
	ErrAlreadyTracked = errors.New("token is already being tracked")
	ErrNotTracked     = errors.New("token is not being tracked")
)

// Backend persists the token set. The registry calls it before changing
// memory, so a failed write leaves both sides untouched.
type Backend interface {
	LoadTokens(ctx context.Context) ([]string, error)
	AddToken(ctx context.Context, mint string) error
	RemoveToken(ctx context.Context, mint string) error
}

// Registry is safe for concurrent use. Order is insertion order.
type Registry struct {
	mu      sync.RWMutex
	tokens  []string
	backend Backend
	logger  *slog.Logger
}

// New creates an empty registry. backend may be nil for a memory-only set.
func New(backend Backend, logger *slog.Logger) *Registry {
	return &Registry{backend: backend, logger: logger}
}

// ValidateAddress checks that s is a base58 string decoding to 32 bytes.
func ValidateAddress(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != solana.PublicKeyLength {
		return fmt.Errorf("%w: decoded to %d bytes, want %d", ErrInvalidAddress, len(raw), solana.PublicKeyLength)
	}
	return nil
}

// Load replaces the in-memory set with the backend's contents. Duplicate and
// invalid entries are dropped with a warning.
func (r *Registry) Load(ctx context.Context) error {
	if r.backend == nil {
		return nil
	}
	stored, err := r.backend.LoadTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}

	tokens := make([]string, 0, len(stored))
	for _, mint := range stored {
		if err := ValidateAddress(mint); err != nil {
			r.logger.WarnContext(ctx, "skipping invalid stored token", "token", mint, "error", err)
			continue
		}
		if slices.Contains(tokens, mint) {
			continue
		}
		tokens = append(tokens, mint)
	}

	r.mu.Lock()
	r.tokens = tokens
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "loaded tracked tokens", "count", len(tokens))
	return nil
}

// Add validates and appends mint.
func (r *Registry) Add(ctx context.Context, mint string) error {
	mint = strings.TrimSpace(mint)
	if err := ValidateAddress(mint); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.tokens, mint) {
		return ErrAlreadyTracked
	}
	if r.backend != nil {
		if err := r.backend.AddToken(ctx, mint); err != nil {
			return fmt.Errorf("failed to persist token: %w", err)
		}
	}
	r.tokens = append(r.tokens, mint)
	return nil
}

// Remove deletes mint from the set.
func (r *Registry) Remove(ctx context.Context, mint string) error {
	mint = strings.TrimSpace(mint)

	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.Index(r.tokens, mint)
	if i < 0 {
		return ErrNotTracked
	}
	if r.backend != nil {
		if err := r.backend.RemoveToken(ctx, mint); err != nil {
			return fmt.Errorf("failed to persist removal: %w", err)
		}
	}
	r.tokens = slices.Delete(r.tokens, i, i+1)
	return nil
}

// List returns a snapshot; callers may hold it across changes.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tokens)
}

func (r *Registry) Contains(mint string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.tokens, mint)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
