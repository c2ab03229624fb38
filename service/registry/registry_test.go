package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wif  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	bonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wsol = "So11111111111111111111111111111111111111112"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(wif))
	assert.NoError(t, ValidateAddress(wsol))

	for _, bad := range []string{"", "abc", "not-a-mint", wif + "x", "0OIl" + wif[4:]} {
		assert.ErrorIs(t, ValidateAddress(bad), ErrInvalidAddress, bad)
	}
}

func TestRegistry_AddRemoveList(t *testing.T) {
	ctx := context.Background()
	r := New(nil, discardLogger())

	require.NoError(t, r.Add(ctx, wif))
	require.NoError(t, r.Add(ctx, " "+bonk+"\n"))
	assert.Equal(t, []string{wif, bonk}, r.List())

	assert.ErrorIs(t, r.Add(ctx, wif), ErrAlreadyTracked)
	assert.ErrorIs(t, r.Add(ctx, "nope"), ErrInvalidAddress)
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Remove(ctx, wif))
	assert.ErrorIs(t, r.Remove(ctx, wif), ErrNotTracked)
	assert.False(t, r.Contains(wif))
	assert.True(t, r.Contains(bonk))
}

func TestRegistry_ListIsSnapshot(t *testing.T) {
	ctx := context.Background()
	r := New(nil, discardLogger())
	require.NoError(t, r.Add(ctx, wif))

	snap := r.List()
	require.NoError(t, r.Remove(ctx, wif))
	require.NoError(t, r.Add(ctx, bonk))

	assert.Equal(t, []string{wif}, snap)
}

type failingBackend struct {
	tokens []string
	err    error
}

func (b *failingBackend) LoadTokens(context.Context) ([]string, error) {
	return b.tokens, b.err
}

func (b *failingBackend) AddToken(context.Context, string) error {
	return b.err
}

func (b *failingBackend) RemoveToken(context.Context, string) error {
	return b.err
}

func TestRegistry_BackendFailureLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	b := &failingBackend{}
	r := New(b, discardLogger())
	require.NoError(t, r.Add(ctx, wif))

	b.err = errors.New("disk full")
	assert.Error(t, r.Add(ctx, bonk))
	assert.Error(t, r.Remove(ctx, wif))
	assert.Equal(t, []string{wif}, r.List())
}

func TestRegistry_LoadDropsInvalidAndDuplicates(t *testing.T) {
	b := &failingBackend{tokens: []string{wif, "garbage", bonk, wif}}
	r := New(b, discardLogger())

	require.NoError(t, r.Load(context.Background()))
	assert.Equal(t, []string{wif, bonk}, r.List())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	r := New(nil, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Add(ctx, wif)
			_ = r.Remove(ctx, wif)
		}()
		go func() {
			defer wg.Done()
			_ = r.List()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 1)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "added_tokens.txt")

	r := New(NewFileBackend(path), discardLogger())
	require.NoError(t, r.Load(ctx))
	assert.Empty(t, r.List())

	require.NoError(t, r.Add(ctx, wif))
	require.NoError(t, r.Add(ctx, bonk))
	require.NoError(t, r.Remove(ctx, wif))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bonk+"\n", string(data))

	reloaded := New(NewFileBackend(path), discardLogger())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{bonk}, reloaded.List())
}

func TestFileBackend_IgnoresBlankAndCommentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "added_tokens.txt")
	require.NoError(t, os.WriteFile(path, []byte("# watched\n\n  "+wif+"  \n"+bonk+"\n"), 0o644))

	tokens, err := NewFileBackend(path).LoadTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{wif, bonk}, tokens)
}
