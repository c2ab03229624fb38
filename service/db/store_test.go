package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wif  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	bonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func TestTrackedTokens(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	t.Run("insertion order is preserved", func(t *testing.T) {
		require.NoError(t, store.AddToken(ctx, wif))
		require.NoError(t, store.AddToken(ctx, bonk))

		tokens, err := store.LoadTokens(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{wif, bonk}, tokens)
	})

	t.Run("duplicate add is a no-op", func(t *testing.T) {
		require.NoError(t, store.AddToken(ctx, wif))

		tokens, err := store.ListTrackedTokens(ctx)
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		assert.False(t, tokens[0].AddedAt.IsZero())
	})

	t.Run("remove drops the cursor too", func(t *testing.T) {
		require.NoError(t, store.SaveCursor(ctx, wif, "sig-1"))
		require.NoError(t, store.RemoveToken(ctx, wif))

		tokens, err := store.LoadTokens(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{bonk}, tokens)

		cursors, err := store.LoadCursors(ctx)
		require.NoError(t, err)
		assert.NotContains(t, cursors, wif)
	})
}

func TestCursors(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	require.NoError(t, store.SaveCursor(ctx, wif, "sig-1"))
	require.NoError(t, store.SaveCursor(ctx, wif, "sig-2"))
	require.NoError(t, store.SaveCursor(ctx, bonk, "sig-9"))

	cursors, err := store.LoadCursors(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{wif: "sig-2", bonk: "sig-9"}, cursors)

	require.NoError(t, store.DeleteCursor(ctx, bonk))
	require.NoError(t, store.DeleteCursor(ctx, "never-saved"))

	cursors, err = store.LoadCursors(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{wif: "sig-2"}, cursors)
}
