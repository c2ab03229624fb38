package metadata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testMint = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"

// stubSource returns a canned answer and counts calls.
type stubSource struct {
	name  string
	id    Identity
	err   error
	panic bool
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Lookup(context.Context, string) (Identity, error) {
	s.calls++
	if s.panic {
		panic("boom")
	}
	return s.id, s.err
}

func newTestResolver(sources ...Source) *Resolver {
	return NewResolver(sources, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolve_FirstSuccessWins(t *testing.T) {
	first := &stubSource{name: "first", id: Identity{Name: "dogwifhat", Symbol: "WIF"}}
	second := &stubSource{name: "second", id: Identity{Name: "other", Symbol: "OTH"}}

	got := newTestResolver(first, second).Resolve(context.Background(), testMint)

	assert.Equal(t, Identity{Name: "dogwifhat", Symbol: "WIF", Source: "first"}, got)
	assert.Equal(t, 0, second.calls)
}

func TestResolve_SkipsFailuresMissesAndRejects(t *testing.T) {
	sources := []Source{
		&stubSource{name: "down", err: errors.New("connection reset")},
		&stubSource{name: "miss", err: ErrNotFound},
		&stubSource{name: "garbage", id: Identity{Name: "ok", Symbol: "BAD\x00"}},
		&stubSource{name: "panics", panic: true},
		&stubSource{name: "good", id: Identity{Name: "dogwifhat", Symbol: "WIF"}},
	}

	got := newTestResolver(sources...).Resolve(context.Background(), testMint)
	assert.Equal(t, "good", got.Source)
	assert.Equal(t, "WIF", got.Symbol)
}

func TestResolve_AddressLookAlikeName(t *testing.T) {
	src := &stubSource{name: "spoof", id: Identity{
		Name:   "Hxxk7GSJtjMFqKZ9KQanSqYXRcF8fBop",
		Symbol: "WIF",
	}}

	got := newTestResolver(src).Resolve(context.Background(), testMint)
	assert.Equal(t, "Unverified", got.Name)
	assert.Equal(t, "WIF", got.Symbol)
	assert.Equal(t, "spoof", got.Source)
}

func TestResolve_NameEqualToMint(t *testing.T) {
	src := &stubSource{name: "echo", id: Identity{Name: testMint, Symbol: testMint}}

	got := newTestResolver(src).Resolve(context.Background(), testMint)
	assert.Equal(t, "Unverified", got.Name)
	assert.Equal(t, "EKPQ", got.Symbol)
	assert.Equal(t, "fallback", got.Source)
}

func TestResolve_OverlongSymbolFallsThrough(t *testing.T) {
	first := &stubSource{name: "first", id: Identity{Name: "Spoof", Symbol: strings.Repeat("W", 40)}}
	second := &stubSource{name: "second", id: Identity{Name: "dogwifhat", Symbol: "WIF"}}

	got := newTestResolver(first, second).Resolve(context.Background(), testMint)
	assert.Equal(t, Identity{Name: "dogwifhat", Symbol: "WIF", Source: "second"}, got)
	assert.Equal(t, 1, first.calls)
}

func TestResolve_TotalFallback(t *testing.T) {
	src := &stubSource{name: "down", err: errors.New("timeout")}

	got := newTestResolver(src).Resolve(context.Background(), testMint)
	assert.Equal(t, Identity{Name: "Unverified", Symbol: "EKPQ", Source: "fallback"}, got)
}

func TestResolve_NoSourcesOddInput(t *testing.T) {
	r := newTestResolver()
	for _, in := range []string{"", "ab", "\x00\x01", testMint} {
		got := r.Resolve(context.Background(), in)
		assert.Equal(t, "Unverified", got.Name)
		assert.NotEmpty(t, got.Symbol)
	}
}
