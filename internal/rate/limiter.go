package rate

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/credvault/credvault/internal/metrics"
)

const keyPrefix = "cvr"

// Budget is the fixed-window allowance for one purpose.
type Budget struct {
	Requests int
	Window   time.Duration
}

// Decision is the outcome of one rate check.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Limiter enforces per-purpose, per-identifier fixed-window budgets using
// Redis counters.
type Limiter struct {
	redis   redis.UniversalClient
	budgets map[string]Budget
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a Limiter backed by the given Redis client. Purposes absent
// from budgets are never throttled.
func New(redisClient redis.UniversalClient, budgets map[string]Budget, m *metrics.Metrics, log zerolog.Logger) *Limiter {
	return &Limiter{
		redis:   redisClient,
		budgets: budgets,
		metrics: m,
		log:     log,
	}
}

// Check consumes one unit of the identifier's budget for a purpose and
// returns the decision. Every cache fault degrades to "allowed".
func (l *Limiter) Check(ctx context.Context, purpose, identifier string) Decision {
	budget, ok := l.budgets[purpose]
	if !ok || budget.Requests <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	key := keyPrefix + ":" + purpose + ":" + identifier
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		l.failOpen(err, purpose)
		return Decision{Allowed: true, Remaining: -1}
	}

	// Fixed-window semantics: the TTL is set only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, budget.Window).Err(); err != nil {
			// A counter without a TTL would deny forever; drop it and allow.
			_ = l.redis.Del(ctx, key).Err()
			l.failOpen(err, purpose)
			return Decision{Allowed: true, Remaining: -1}
		}
	}

	remaining := budget.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if count > int64(budget.Requests) {
		l.metrics.Inc(metrics.RateLimitDenied)
		return Decision{Allowed: false, Remaining: 0}
	}
	return Decision{Allowed: true, Remaining: remaining}
}

func (l *Limiter) failOpen(err error, purpose string) {
	l.metrics.Inc(metrics.RateLimitFailOpen)
	l.log.Warn().Err(err).Str("purpose", purpose).Msg("rate limiter cache unreachable, allowing request")
}
