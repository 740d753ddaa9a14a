package services

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skaiscraper/backend/internal/metrics"
	"go.uber.org/zap"
)

const grantLimitKeyPrefix = "ledger:admin_grants:"

// GrantLimiter caps how many manual grants one operator can issue per window
// using a fixed-window counter in Redis. A nil client disables the limit.
type GrantLimiter struct {
	redis   *redis.Client
	limit   int64
	window  time.Duration
	metrics *metrics.LedgerMetrics
	log     *zap.Logger
}

func NewGrantLimiter(client *redis.Client, limit int, window time.Duration, m *metrics.LedgerMetrics, log *zap.Logger) *GrantLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &GrantLimiter{
		redis:   client,
		limit:   int64(limit),
		window:  window,
		metrics: m,
		log:     log.Named("ledger.limiter"),
	}
}

// Allow records one grant attempt by actorID and returns ErrRateLimited once
// the actor is over the limit. Redis failures are logged and let through.
func (l *GrantLimiter) Allow(ctx context.Context, actorID string) error {
	if l == nil || l.redis == nil || l.limit <= 0 {
		return nil
	}

	key := grantLimitKeyPrefix + actorID
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		l.log.Warn("grant limiter unavailable", zap.String("actor_id", actorID), zap.Error(err))
		return nil
	}
	count := incr.Val()

	// A counter without a TTL would never reset; set the window whenever it is missing.
	if ttl.Val() < 0 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			l.log.Warn("failed to set grant limiter window", zap.String("actor_id", actorID), zap.Error(err))
		}
	}

	allowed := count <= l.limit
	l.metrics.RecordRateLimit(allowed)
	if !allowed {
		l.log.Info("admin grant rate limited", zap.String("actor_id", actorID), zap.Int64("count", count))
		return ErrRateLimited
	}
	return nil
}
