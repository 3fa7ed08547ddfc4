package rate_limiting_stores

import (
	"context"
	"time"

	"github.com/aryangodara/profile_rate_limiter"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	_ profile_rate_limiter.Store = &FixedWindowStore{}
)

const (
	keyDNE      = -2
	keyNoExpire = -1
)

var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local count = tonumber(redis.call('GET', key) or '0')
local recorded = 0
if count < limit then
	count = redis.call('INCR', key)
	recorded = 1
end

local ttl = redis.call('PTTL', key)
if recorded == 1 and ttl < 0 then
	redis.call('PEXPIRE', key, window)
	ttl = window
end

return {recorded, count, ttl}
`)

// FixedWindowStore is the count-with-expiry variant: one counter per key
// that starts its window on the first request and expires with it. It keeps
// O(1) memory per key at the price of allowing up to twice the limit across
// a window boundary.
type FixedWindowStore struct {
	client redis.UniversalClient
}

// NewFixedWindowStore creates a Redis backed fixed window store.
func NewFixedWindowStore(client redis.UniversalClient) *FixedWindowStore {
	return &FixedWindowStore{client: client}
}

func (f *FixedWindowStore) Record(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (*profile_rate_limiter.Window, error) {
	values, err := fixedWindowScript.Run(ctx, f.client, []string{key},
		window.Milliseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run fixed window script for key %v", key)
	}

	if len(values) != 3 {
		return nil, errors.Errorf("unexpected fixed window script reply for key %v: %v", key, values)
	}

	return windowFromTTL(values[0] == 1, values[1], time.Duration(values[2])*time.Millisecond, now, window), nil
}

func (f *FixedWindowStore) Inspect(ctx context.Context, key string, now time.Time, window time.Duration) (*profile_rate_limiter.Window, error) {
	// Redis pipeline to optimize network round trips.
	pipe := f.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(err, "error executing Redis pipeline for key %v", key)
	}

	count, err := getCmd.Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(err, "error reading counter for key %v", key)
		}
		return &profile_rate_limiter.Window{}, nil
	}

	ttl, err := ttlCmd.Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error reading expiration for key %v", key)
	}

	return windowFromTTL(false, count, ttl, now, window), nil
}

func (f *FixedWindowStore) Clear(ctx context.Context, key string) error {
	if err := f.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "error deleting key %v", key)
	}
	return nil
}

// Ping checks the Redis connection.
func (f *FixedWindowStore) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// windowFromTTL reports the window start as the oldest entry, so the limiter
// computes the reset as the moment the counter expires.
func windowFromTTL(recorded bool, count int64, ttl time.Duration, now time.Time, window time.Duration) *profile_rate_limiter.Window {
	w := &profile_rate_limiter.Window{Count: count, Recorded: recorded}
	if count == 0 {
		return w
	}
	if ttl == keyDNE || ttl == keyNoExpire || ttl < 0 {
		ttl = window
	}
	w.Oldest = now.Add(ttl - window)
	return w
}
