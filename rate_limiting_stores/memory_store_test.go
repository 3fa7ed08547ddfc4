package rate_limiting_stores

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Record(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

	for x := int64(1); x <= 3; x++ {
		w, err := store.Record(ctx, "k", start.Add(time.Duration(x)*time.Second), time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, w.Recorded)
		assert.Equal(t, x, w.Count)
		assert.Equal(t, start.Add(time.Second), w.Oldest)
	}

	w, err := store.Record(ctx, "k", start.Add(4*time.Second), time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, w.Recorded)
	assert.Equal(t, int64(3), w.Count)

	// the first entry is exactly on the window start and leaves
	w, err = store.Record(ctx, "k", start.Add(61*time.Second), time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, w.Recorded)
	assert.Equal(t, int64(3), w.Count)
	assert.Equal(t, start.Add(2*time.Second), w.Oldest)
}

func TestMemoryStore_RecordKeepsEntriesOrdered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

	_, err := store.Record(ctx, "k", start.Add(2*time.Second), time.Minute, 10)
	require.NoError(t, err)

	w, err := store.Record(ctx, "k", start, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, start, w.Oldest)
	assert.Equal(t, int64(2), w.Count)
}

func TestMemoryStore_Inspect(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

	w, err := store.Inspect(ctx, "k", start, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Count)

	for x := 0; x < 2; x++ {
		_, err := store.Record(ctx, "k", start.Add(time.Duration(x)*time.Second), time.Minute, 5)
		require.NoError(t, err)
	}

	first, err := store.Inspect(ctx, "k", start.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	second, err := store.Inspect(ctx, "k", start.Add(time.Minute), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), first.Count)
	assert.Equal(t, start.Add(time.Second), first.Oldest)
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Record(ctx, "k", time.Now(), time.Minute, 1)
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, "k"))

	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_ThreadSafety(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		recorded int
	)

	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			w, _ := store.Record(context.Background(), "k", now, time.Minute, 60)
			if w.Recorded {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 60, recorded)
}

func TestMemoryStore_CleanupRemovesIdleEntries(t *testing.T) {
	clock := time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)
	store := NewMemoryStore(
		WithIdleTTL(time.Minute),
		WithMemoryClock(func() time.Time { return clock }),
	)
	ctx := context.Background()

	_, err := store.Record(ctx, "idle", clock, time.Minute, 1)
	require.NoError(t, err)

	clock = clock.Add(45 * time.Second)
	_, err = store.Record(ctx, "active", clock, time.Minute, 1)
	require.NoError(t, err)

	clock = clock.Add(30 * time.Second)
	store.Cleanup()

	assert.Equal(t, 1, store.Len())
	w, err := store.Inspect(ctx, "active", clock, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Count)
}

func TestMemoryStore_StartJanitor(t *testing.T) {
	var (
		mu    sync.Mutex
		clock = time.Now()
	)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	store := NewMemoryStore(WithIdleTTL(time.Minute), WithMemoryClock(now))
	_, err := store.Record(context.Background(), "k", now(), time.Minute, 1)
	require.NoError(t, err)

	mu.Lock()
	clock = clock.Add(time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.StartJanitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func BenchmarkMemoryStore_Record(b *testing.B) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < b.N; i++ {
		_, _ = store.Record(ctx, "k", now.Add(time.Duration(i)*time.Millisecond), time.Second, 1000)
	}
}
