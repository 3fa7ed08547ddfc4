package rate_limiting_stores

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aryangodara/profile_rate_limiter"
)

var (
	_ profile_rate_limiter.Store = &MemoryStore{}
)

// MemoryStore is an in-process sliding window store.
//
// It is safe for concurrent use by multiple goroutines, but its state is
// local to the process and is not shared across replicas. Use
// SlidingWindowStore when several instances must enforce one limit.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	idleTTL time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	// ascending
	timestamps []time.Time
	lastSeen   time.Time
}

type MemoryStoreOption func(*MemoryStore)

// WithIdleTTL sets how long a key may go untouched before Cleanup drops it.
func WithIdleTTL(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.idleTTL = d }
}

// WithMemoryClock sets the clock Cleanup uses to judge idleness.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		idleTTL: time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Record(_ context.Context, key string, now time.Time, window time.Duration, limit int64) (*profile_rate_limiter.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &memoryEntry{}
		s.entries[key] = ent
	}
	ent.lastSeen = s.now()
	ent.timestamps = evict(ent.timestamps, now.Add(-window))

	recorded := false
	if int64(len(ent.timestamps)) < limit {
		// clocks may hand out the same or an earlier instant; keep the slice sorted
		i := sort.Search(len(ent.timestamps), func(i int) bool { return ent.timestamps[i].After(now) })
		ent.timestamps = append(ent.timestamps, time.Time{})
		copy(ent.timestamps[i+1:], ent.timestamps[i:])
		ent.timestamps[i] = now
		recorded = true
	}

	return snapshot(ent.timestamps, recorded), nil
}

func (s *MemoryStore) Inspect(_ context.Context, key string, now time.Time, window time.Duration) (*profile_rate_limiter.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return &profile_rate_limiter.Window{}, nil
	}

	windowStart := now.Add(-window)
	i := sort.Search(len(ent.timestamps), func(i int) bool { return ent.timestamps[i].After(windowStart) })
	return snapshot(ent.timestamps[i:], false), nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Cleanup drops keys that have not been recorded to for longer than the idle TTL.
func (s *MemoryStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// Len reports how many keys are tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// evict drops the timestamps at or before windowStart.
func evict(timestamps []time.Time, windowStart time.Time) []time.Time {
	i := sort.Search(len(timestamps), func(i int) bool { return timestamps[i].After(windowStart) })
	if i == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[i:]...)
}

func snapshot(timestamps []time.Time, recorded bool) *profile_rate_limiter.Window {
	w := &profile_rate_limiter.Window{Count: int64(len(timestamps)), Recorded: recorded}
	if len(timestamps) > 0 {
		w.Oldest = timestamps[0]
	}
	return w
}
