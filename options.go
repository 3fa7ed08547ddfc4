package profile_rate_limiter

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Option configures a Limiter.
type Option func(*Limiter)

// WithPrefix sets the namespace prefix of every store key (default "rl:").
func WithPrefix(prefix string) Option {
	return func(l *Limiter) {
		l.prefix = prefix
	}
}

// WithTimeout bounds each store round-trip (default 50ms). A timed out call
// counts as a store failure.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRegistry sets the profile table used by CheckNamed and the middleware.
func WithRegistry(registry *ProfileRegistry) Option {
	return func(l *Limiter) {
		l.registry = registry
	}
}

// WithFailureLogRate caps how many store failures per second get logged on
// the enforcing path, with the given burst.
func WithFailureLogRate(perSecond float64, burst int) Option {
	return func(l *Limiter) {
		l.failures = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}
