// Package metadata resolves a token mint to a display name and symbol by
// asking an ordered list of sources and validating what they return.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/buywatch/service/metrics"
)

// ErrNotFound is returned by a source that has no entry for the mint.
var ErrNotFound = errors.New("token not found")

// Identity is a token's display name and symbol.
type Identity struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Source string `json:"source"`
}

// Source is one lookup strategy.
type Source interface {
	Name() string
	Lookup(ctx context.Context, mint string) (Identity, error)
}

// Resolver tries its sources in order; the first valid answer wins.
type Resolver struct {
	sources []Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a resolver over sources in priority order.
func NewResolver(sources []Source, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	return &Resolver{sources: sources, logger: logger, metrics: m}
}

// Resolve never fails: when every source errors, misses or is rejected, the
// fallback identity is returned.
func (r *Resolver) Resolve(ctx context.Context, mint string) Identity {
	for _, src := range r.sources {
		id, err := r.lookup(ctx, src, mint)
		if errors.Is(err, ErrNotFound) {
			r.metrics.RecordMetadataLookup(src.Name(), "miss")
			continue
		}
		if err != nil {
			r.metrics.RecordMetadataLookup(src.Name(), "error")
			r.logger.WarnContext(ctx, "metadata source failed",
				"source", src.Name(),
				"mint", mint,
				"error", err,
			)
			continue
		}

		clean, ok := sanitize(id, mint)
		if !ok {
			r.metrics.RecordMetadataLookup(src.Name(), "rejected")
			r.logger.DebugContext(ctx, "rejected metadata candidate",
				"source", src.Name(),
				"mint", mint,
				"name", fmt.Sprintf("%q", id.Name),
				"symbol", fmt.Sprintf("%q", id.Symbol),
			)
			continue
		}

		r.metrics.RecordMetadataLookup(src.Name(), "hit")
		clean.Source = src.Name()
		return clean
	}

	r.metrics.RecordMetadataLookup("fallback", "hit")
	return Fallback(mint)
}

// lookup shields the chain from a misbehaving source.
func (r *Resolver) lookup(ctx context.Context, src Source, mint string) (id Identity, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), p)
		}
	}()
	return src.Lookup(ctx, mint)
}
