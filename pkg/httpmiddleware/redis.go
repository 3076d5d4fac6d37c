package httpmiddleware

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore is a fixed window Store shared by every replica through Redis.
type RedisStore struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	prefix string
}

// NewRedisStore creates a RedisStore allowing limit requests per window.
func NewRedisStore(client redis.Cmdable, limit int, window time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
	}
}

// Allow implements Store. The counter and its TTL are read in one MULTI,
// and a key found without a TTL gets one, so a lost PEXPIRE cannot pin a
// client at the limit.
func (s *RedisStore) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	k := s.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		pttl = p.PTTL(ctx, k)
		return nil
	}); err != nil {
		return Decision{}, errors.Wrap(err, "incr counter")
	}
	count, left := incr.Val(), pttl.Val()

	// PTTL is -1 for a key without expiry.
	if left < 0 {
		if err := s.client.PExpire(ctx, k, s.window).Err(); err != nil {
			return Decision{}, errors.Wrap(err, "pexpire")
		}
		left = s.window
	}
	return Decision{
		Allowed:   count <= int64(s.limit),
		Remaining: max(s.limit-int(count), 0),
		ResetAt:   now.Add(left),
	}, nil
}
