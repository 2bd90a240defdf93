package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript applies Bucket.Consume atomically inside Redis.
// Buckets are hashes: r remaining, ws window start, w window, bu block until
// (all times in unix milliseconds, w in milliseconds).
//
// ARGV: now_ms, points, window_ms, block_ms
// Returns: {allowed, remaining, reset_ms}
var consumeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local points = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local block = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'r', 'ws', 'w', 'bu')
local r = tonumber(state[1])
local ws = tonumber(state[2]) or 0
local w = tonumber(state[3]) or 0
local bu = tonumber(state[4]) or 0

if bu > 0 and now < bu then
  return {0, 0, bu}
end

if r == nil or bu > 0 or w <= 0 or now >= ws + w then
  r = points
  ws = now
  w = window
  bu = 0
end

local allowed = 0
local reset = ws + w
if r > 0 then
  r = r - 1
  allowed = 1
else
  if block > 0 then
    bu = now + block
  else
    bu = ws + w
  end
  reset = bu
end

redis.call('HSET', KEYS[1], 'r', r, 'ws', ws, 'w', w, 'bu', bu)

local expires = ws + w
if bu > expires then
  expires = bu
end
local ttl = expires - now
if ttl < 1000 then
  ttl = 1000
end
redis.call('PEXPIRE', KEYS[1], ttl)

return {allowed, r, reset}
`)

// RedisStore keeps buckets in Redis so every gateway instance shares them.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// DefaultRedisPrefix namespaces bucket keys.
const DefaultRedisPrefix = "skin-relay:rl:"

// NewRedisStore wraps client. The store takes ownership: Close closes client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Consume implements Store.
func (s *RedisStore) Consume(ctx context.Context, key string, tier Tier, now time.Time) (Decision, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(),
		tier.Points,
		tier.Window.Milliseconds(),
		tier.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, s.wrap(err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, res)
	}

	return Decision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string) (Bucket, bool, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+key, "r", "ws", "w", "bu").Result()
	if err != nil {
		return Bucket{}, false, s.wrap(err)
	}
	if len(vals) != 4 || vals[0] == nil {
		return Bucket{}, false, nil
	}

	nums := make([]int64, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return Bucket{}, false, fmt.Errorf("%w: decode bucket %s: %w", ErrStoreUnavailable, key, err)
		}
		nums[i] = n
	}

	b := Bucket{
		Remaining:   int(nums[0]),
		WindowStart: time.UnixMilli(nums[1]),
		Window:      time.Duration(nums[2]) * time.Millisecond,
	}
	if nums[3] > 0 {
		b.BlockUntil = time.UnixMilli(nums[3])
	}
	return b, true, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

func (s *RedisStore) wrap(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, redis.ErrClosed):
		return ErrClosed
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

var _ Store = (*RedisStore)(nil)
