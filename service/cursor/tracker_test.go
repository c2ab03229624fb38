package cursor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory serves a fixed signature history, newest first.
type fakeHistory struct {
	mu      sync.Mutex
	history []string
	calls   int
	err     error
}

func (f *fakeHistory) Signatures(_ context.Context, _ string, before string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	start := 0
	if before != "" {
		start = len(f.history)
		for i, s := range f.history {
			if s == before {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(f.history))
	return append([]string(nil), f.history[start:end]...), nil
}

// history returns sig-n ... sig-1, newest first.
func history(n int) []string {
	out := make([]string, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, fmt.Sprintf("sig-%d", i))
	}
	return out
}

// failingStore returns an error from every write.
type failingStore struct{ *MemoryStore }

func (f *failingStore) SaveCursor(context.Context, string, string) error {
	return errors.New("disk full")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTracker(src SignatureSource, store Store) *Tracker {
	return NewTracker(src, store, Options{PageLimit: 3, MaxPages: 4}, testLogger())
}

func TestPending_NoWatermarkReturnsLatestOnly(t *testing.T) {
	src := &fakeHistory{history: history(20)}
	tr := newTestTracker(src, nil)

	got, err := tr.Pending(context.Background(), "mint", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sig-20"}, got)
}

func TestPending_OldestFirstExcludingWatermark(t *testing.T) {
	src := &fakeHistory{history: history(8)}
	tr := newTestTracker(src, nil)

	got, err := tr.Pending(context.Background(), "mint", "sig-3")
	require.NoError(t, err)
	assert.Equal(t, []string{"sig-4", "sig-5", "sig-6", "sig-7", "sig-8"}, got)
	assert.Equal(t, 2, src.calls, "watermark is on the second page of three")
}

func TestPending_WatermarkIsNewest(t *testing.T) {
	src := &fakeHistory{history: history(8)}
	tr := newTestTracker(src, nil)

	got, err := tr.Pending(context.Background(), "mint", "sig-8")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, src.calls)
}

func TestPending_StopsAtEndOfHistory(t *testing.T) {
	src := &fakeHistory{history: history(5)}
	tr := newTestTracker(src, nil)

	// Watermark unknown to the node (e.g. pruned): the whole short history is pending.
	got, err := tr.Pending(context.Background(), "mint", "sig-unknown")
	require.NoError(t, err)
	assert.Equal(t, []string{"sig-1", "sig-2", "sig-3", "sig-4", "sig-5"}, got)
	assert.Equal(t, 2, src.calls)
}

func TestPending_PageCap(t *testing.T) {
	src := &fakeHistory{history: history(100)}
	tr := newTestTracker(src, nil)

	got, err := tr.Pending(context.Background(), "mint", "sig-1")
	require.NoError(t, err)
	// 4 pages of 3: sig-100 .. sig-89, oldest first.
	require.Len(t, got, 12)
	assert.Equal(t, "sig-89", got[0])
	assert.Equal(t, "sig-100", got[11])
	assert.Equal(t, 4, src.calls)
}

func TestPending_SourceError(t *testing.T) {
	tr := newTestTracker(&fakeHistory{err: errors.New("rpc down")}, nil)

	_, err := tr.Pending(context.Background(), "mint", "sig-1")
	assert.Error(t, err)
}

func TestAdvance_ThenPendingExcludesIt(t *testing.T) {
	ctx := context.Background()
	src := &fakeHistory{history: history(6)}
	tr := newTestTracker(src, nil)

	tr.Advance(ctx, "mint", "sig-4")
	wm, ok := tr.Watermark("mint")
	require.True(t, ok)
	assert.Equal(t, "sig-4", wm)

	got, err := tr.Pending(ctx, "mint", wm)
	require.NoError(t, err)
	assert.NotContains(t, got, "sig-4")
	assert.Equal(t, []string{"sig-5", "sig-6"}, got)
}

func TestAdvance_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&fakeHistory{}, nil)

	tr.Advance(ctx, "mint", "sig-2")
	tr.Advance(ctx, "mint", "sig-2")
	tr.Advance(ctx, "mint", "sig-1")

	wm, _ := tr.Watermark("mint")
	assert.Equal(t, "sig-1", wm)
}

func TestCompareAndAdvance(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&fakeHistory{}, nil)

	start := tr.Mark("mint")
	assert.Empty(t, start.Signature)

	next, ok := tr.CompareAndAdvance(ctx, "mint", start, "sig-1")
	require.True(t, ok)
	assert.Equal(t, "sig-1", next.Signature)

	_, ok = tr.CompareAndAdvance(ctx, "mint", start, "sig-2")
	assert.False(t, ok, "stale expectation must lose")

	_, ok = tr.CompareAndAdvance(ctx, "mint", next, "sig-2")
	assert.True(t, ok)

	wm, _ := tr.Watermark("mint")
	assert.Equal(t, "sig-2", wm)
}

func TestCompareAndAdvance_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&fakeHistory{}, nil)
	tr.Advance(ctx, "mint", "sig-0")
	start := tr.Mark("mint")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := tr.CompareAndAdvance(ctx, "mint", start, fmt.Sprintf("sig-%d", i+1)); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestCompareAndAdvance_MarkFromBeforeForgetLoses(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := newTestTracker(&fakeHistory{}, store)

	inFlight := tr.Mark("mint")
	tr.Forget(ctx, "mint")

	_, ok := tr.CompareAndAdvance(ctx, "mint", inFlight, "sig-1")
	assert.False(t, ok, "a forgotten token must not get its cursor back")

	_, ok = tr.Watermark("mint")
	assert.False(t, ok)
	saved, err := store.LoadCursors(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)

	_, ok = tr.CompareAndAdvance(ctx, "mint", tr.Mark("mint"), "sig-2")
	assert.True(t, ok, "a mark read after Forget starts fresh")
}

func TestWatermark_Absent(t *testing.T) {
	tr := newTestTracker(&fakeHistory{}, nil)
	_, ok := tr.Watermark("never-seen")
	assert.False(t, ok)
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := newTestTracker(&fakeHistory{}, store)

	tr.Advance(ctx, "mint", "sig-1")
	tr.Forget(ctx, "mint")

	_, ok := tr.Watermark("mint")
	assert.False(t, ok)
	saved, err := store.LoadCursors(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestPersistence_RoundTripThroughLoad(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "cursors.json"))

	first := newTestTracker(&fakeHistory{}, store)
	first.Advance(ctx, "mint-a", "sig-1")
	first.Advance(ctx, "mint-b", "sig-9")

	second := newTestTracker(&fakeHistory{}, NewFileStore(store.path))
	require.NoError(t, second.Load(ctx))
	assert.Equal(t, map[string]string{"mint-a": "sig-1", "mint-b": "sig-9"}, second.Snapshot())
}

func TestPersistence_FailureKeepsMemoryValue(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(&fakeHistory{}, &failingStore{MemoryStore: NewMemoryStore()})

	tr.Advance(ctx, "mint", "sig-1")

	wm, ok := tr.Watermark("mint")
	require.True(t, ok)
	assert.Equal(t, "sig-1", wm)
}
