package profile_rate_limiter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// State represents the result of rate limiting.
type State int64

const (
	Deny State = iota
	Allow
)

// State strings for logs
var stateStrings = map[State]string{
	Allow: "Allow",
	Deny:  "Deny",
}

func (s State) String() string {
	return stateStrings[s]
}

// Result is the outcome of a rate limit check.
type Result struct {
	State     State
	Remaining int64
	ResetAt   time.Time
	Limit     int64
}

// Allowed reports whether the request may proceed.
func (r *Result) Allowed() bool {
	return r.State == Allow
}

// Window is the view a Store returns of the requests recorded for a key.
// Count and Oldest describe the entries that survived eviction, including
// the current request when Recorded is true. Oldest is zero when Count is 0.
type Window struct {
	Count    int64
	Oldest   time.Time
	Recorded bool
}

// Store keeps the request log for every rate limit key. Implementations
// must be safe for concurrent use across goroutines and, for shared
// backends, across processes.
type Store interface {
	// Record atomically evicts entries at or before now-window, counts the
	// survivors and records now when the count is below limit.
	Record(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (*Window, error)
	// Inspect counts the entries inside (now-window, now] without writing.
	Inspect(ctx context.Context, key string, now time.Time, window time.Duration) (*Window, error)
	// Clear drops every entry recorded for key.
	Clear(ctx context.Context, key string) error
}

const (
	defaultPrefix  = "rl:"
	defaultTimeout = 50 * time.Millisecond

	// UnknownClient pools every caller we could not identify into one bucket.
	UnknownClient = "unknown"
)

// Limiter enforces sliding window quotas for named profiles. It holds no
// request state of its own; everything lives in the Store.
type Limiter struct {
	store    Store
	registry *ProfileRegistry
	prefix   string
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	failures *rate.Limiter
}

// NewLimiter builds a Limiter on top of store.
func NewLimiter(store Store, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	l := &Limiter{
		store:    store,
		prefix:   defaultPrefix,
		timeout:  defaultTimeout,
		now:      time.Now,
		logger:   slog.Default(),
		failures: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.registry == nil {
		registry, err := NewProfileRegistry(DefaultProfiles()...)
		if err != nil {
			return nil, err
		}
		l.registry = registry
	}

	return l, nil
}

// Registry returns the profile table the limiter resolves names against.
func (l *Limiter) Registry() *ProfileRegistry {
	return l.registry
}

// Key builds the store key for a client under a profile.
func (l *Limiter) Key(clientID string, p Profile) string {
	return l.prefix + p.Name + ":" + l.normalizeClientID(clientID)
}

// Check records the current request for clientID and reports whether it fits
// in the profile's window. Store failures never surface here: the request is
// allowed and the failure is logged.
func (l *Limiter) Check(ctx context.Context, clientID string, p Profile) *Result {
	now := l.now()

	if p.MaxRequests <= 0 {
		return &Result{
			State:     Deny,
			Remaining: 0,
			ResetAt:   now.Add(p.Window),
			Limit:     0,
		}
	}

	key := l.Key(clientID, p)

	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	window, err := l.store.Record(storeCtx, key, now, p.Window, p.MaxRequests)
	if err != nil {
		l.logStoreFailure(ctx, &StoreError{Op: "record", Key: key, Err: err}, p)
		return &Result{
			State:     Allow,
			Remaining: p.MaxRequests - 1,
			ResetAt:   now.Add(p.Window),
			Limit:     p.MaxRequests,
		}
	}

	resetAt := resetTime(window, now, p.Window)

	if !window.Recorded {
		return &Result{
			State:     Deny,
			Remaining: 0,
			ResetAt:   resetAt,
			Limit:     p.MaxRequests,
		}
	}

	return &Result{
		State:     Allow,
		Remaining: max(p.MaxRequests-window.Count, 0),
		ResetAt:   resetAt,
		Limit:     p.MaxRequests,
	}
}

// CheckNamed resolves name through the registry and runs Check. An unknown
// name is a configuration mistake; it is logged and the request goes through
// unlimited instead of failing.
func (l *Limiter) CheckNamed(ctx context.Context, clientID, name string) *Result {
	p, err := l.registry.Lookup(name)
	if err != nil {
		l.logger.ErrorContext(ctx, "rate limit profile not configured, request not limited",
			slog.String("profile", name),
			slog.Any("error", err),
		)
		return &Result{State: Allow, Remaining: 0, ResetAt: l.now(), Limit: 0}
	}

	return l.Check(ctx, clientID, p)
}

// Reset forgets every request recorded for clientID under the profile.
func (l *Limiter) Reset(ctx context.Context, clientID string, p Profile) error {
	key := l.Key(clientID, p)

	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.store.Clear(storeCtx, key); err != nil {
		return &StoreError{Op: "clear", Key: key, Err: err}
	}

	l.logger.InfoContext(ctx, "rate limit reset",
		slog.String("profile", p.Name),
		slog.String("key", key),
	)
	return nil
}

// Status reports the quota for clientID without consuming it. Unlike Check
// it fails closed: a store failure returns a nil result and an error
// matching ErrStoreUnavailable.
func (l *Limiter) Status(ctx context.Context, clientID string, p Profile) (*Result, error) {
	now := l.now()

	if p.MaxRequests <= 0 {
		return &Result{State: Deny, Remaining: 0, ResetAt: now.Add(p.Window), Limit: 0}, nil
	}

	key := l.Key(clientID, p)

	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	window, err := l.store.Inspect(storeCtx, key, now, p.Window)
	if err != nil {
		return nil, &StoreError{Op: "inspect", Key: key, Err: err}
	}

	state := Allow
	if window.Count >= p.MaxRequests {
		state = Deny
	}

	return &Result{
		State:     state,
		Remaining: max(p.MaxRequests-window.Count, 0),
		ResetAt:   resetTime(window, now, p.Window),
		Limit:     p.MaxRequests,
	}, nil
}

func (l *Limiter) normalizeClientID(clientID string) string {
	id := strings.TrimSpace(clientID)
	if id == "" {
		l.logger.Debug("falling back to sentinel client id", slog.Any("error", ErrInvalidIdentifier))
		return UnknownClient
	}
	return id
}

func (l *Limiter) logStoreFailure(ctx context.Context, err error, p Profile) {
	if !l.failures.Allow() {
		return
	}
	l.logger.WarnContext(ctx, "rate limit store unavailable, failing open",
		slog.String("profile", p.Name),
		slog.Any("error", err),
	)
}

// resetTime is when the oldest entry leaves the window and frees a slot.
func resetTime(w *Window, now time.Time, window time.Duration) time.Time {
	if w.Count == 0 || w.Oldest.IsZero() {
		return now.Add(window)
	}
	return w.Oldest.Add(window)
}
