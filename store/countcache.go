package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	countKeyPrefix = "cvc"

	// countTTL bounds staleness when an invalidation is lost (for example
	// because Redis was down when a record changed).
	countTTL = time.Minute
)

// CountCache caches per-owner active record counts in Redis. It is a pure
// optimization over the fan-out COUNT across partitions: every fault
// degrades to a miss and the caller recomputes from the partitions.
type CountCache struct {
	redis redis.UniversalClient
	log   zerolog.Logger
}

// NewCountCache builds a count cache over a Redis client.
func NewCountCache(redisClient redis.UniversalClient, log zerolog.Logger) *CountCache {
	return &CountCache{redis: redisClient, log: log}
}

func countKey(owner string, isSession bool) string {
	kind := "token"
	if isSession {
		kind = "session"
	}
	return countKeyPrefix + ":" + kind + ":" + owner
}

// Get returns the cached count for an owner and kind. ok is false on a
// miss, a fault, or an unparseable value.
func (c *CountCache) Get(ctx context.Context, owner string, isSession bool) (n int, ok bool) {
	val, err := c.redis.Get(ctx, countKey(owner, isSession)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("count cache unreachable")
		}
		return 0, false
	}

	n, convErr := strconv.Atoi(val)
	if convErr != nil || n < 0 {
		c.log.Warn().Str("value", val).Msg("count cache holds invalid value")
		return 0, false
	}
	return n, true
}

// Set writes a freshly computed count. Best-effort.
func (c *CountCache) Set(ctx context.Context, owner string, isSession bool, n int) {
	if err := c.redis.Set(ctx, countKey(owner, isSession), n, countTTL).Err(); err != nil {
		c.log.Warn().Err(err).Msg("count cache write failed")
	}
}

// Invalidate drops both count entries for an owner after any record
// mutation. Best-effort: the TTL bounds the damage of a lost delete.
func (c *CountCache) Invalidate(ctx context.Context, owner string) {
	if err := c.redis.Del(ctx, countKey(owner, false), countKey(owner, true)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("count cache invalidation failed")
	}
}
