package rate_limiting_stores

import (
	"context"
	"strconv"
	"time"

	"github.com/aryangodara/profile_rate_limiter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	_ profile_rate_limiter.Store = &SlidingWindowStore{}
)

const (
	maxSortedSetScore = "+inf"
	minSortedSetScore = "-inf"
)

// Entries with a score at or below ARGV[1]-ARGV[2] are out of the window, so
// membership is (now-window, now].
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '` + minSortedSetScore + `', now - window)

local count = redis.call('ZCARD', key)
local recorded = 0
if count < limit then
	redis.call('ZADD', key, now, member)
	count = count + 1
	recorded = 1
end

local oldest = 0
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #first > 0 then
	oldest = tonumber(first[2])
end

if count > 0 then
	redis.call('PEXPIRE', key, window)
end

return {recorded, count, oldest}
`)

// SlidingWindowStore keeps one sorted set per key: members are request ids,
// scores are unix milliseconds.
type SlidingWindowStore struct {
	client redis.UniversalClient
}

// NewSlidingWindowStore creates a Redis backed sliding window store.
func NewSlidingWindowStore(client redis.UniversalClient) *SlidingWindowStore {
	return &SlidingWindowStore{client: client}
}

// Record evicts, counts and records in a single script so concurrent callers
// for the same key can never both take the last slot.
func (s *SlidingWindowStore) Record(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (*profile_rate_limiter.Window, error) {
	// every request needs an UUID
	item := uuid.New()

	values, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		item.String(),
	).Int64Slice()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run sliding window script for key %v", key)
	}

	if len(values) != 3 {
		return nil, errors.Errorf("unexpected sliding window script reply for key %v: %v", key, values)
	}

	return &profile_rate_limiter.Window{
		Recorded: values[0] == 1,
		Count:    values[1],
		Oldest:   fromMillis(values[2]),
	}, nil
}

// Inspect counts the live entries without touching the set.
func (s *SlidingWindowStore) Inspect(ctx context.Context, key string, now time.Time, window time.Duration) (*profile_rate_limiter.Window, error) {
	// "(" makes the lower bound exclusive
	minimum := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	p := s.client.Pipeline()

	count := p.ZCount(ctx, key, minimum, maxSortedSetScore)
	oldest := p.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:    minimum,
		Max:    maxSortedSetScore,
		Offset: 0,
		Count:  1,
	})

	if _, err := p.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(err, "failed to execute sorted set pipeline for key %v", key)
	}

	total, err := count.Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to count items for key %v", key)
	}

	first, err := oldest.Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read oldest item for key %v", key)
	}

	w := &profile_rate_limiter.Window{Count: total}
	if len(first) > 0 {
		w.Oldest = fromMillis(int64(first[0].Score))
	}
	return w, nil
}

// Clear removes the sorted set.
func (s *SlidingWindowStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete key %v", key)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *SlidingWindowStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
