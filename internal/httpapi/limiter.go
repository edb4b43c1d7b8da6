package httpapi

import (
	"context"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// ManualLineLimiter caps concurrent manual calls per user.
type ManualLineLimiter interface {
	Acquire(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
}

// RedisLineLimiter enforces the cap with an atomic Redis counter so the
// limit holds across process replicas. The TTL keeps a crashed process from
// leaking slots forever.
type RedisLineLimiter struct {
	Rdb   *redis.Client
	Limit int
	TTL   time.Duration
}

const manualLineKeyPrefix = "dialer:manual_lines:"

func (l RedisLineLimiter) limit() int {
	if l.Limit <= 0 {
		return 1
	}
	return l.Limit
}

func (l RedisLineLimiter) ttl() time.Duration {
	if l.TTL <= 0 {
		return 10 * time.Minute
	}
	return l.TTL
}

func (l RedisLineLimiter) Acquire(ctx context.Context, userID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.Rdb, manualLineKeyPrefix+userID, l.limit(), l.ttl())
}

func (l RedisLineLimiter) Release(ctx context.Context, userID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.Rdb, manualLineKeyPrefix+userID)
}
