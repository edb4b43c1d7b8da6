package dialer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claim is the exclusive active-run lease. The business rule "at most one
// run may be running system-wide" is enforced here as an atomic conditional
// claim, not a query-then-check: two concurrent start requests cannot both
// win.
type Claim interface {
	// Acquire takes the lease for runID. Re-acquiring one's own lease
	// refreshes it. A held lease by another run returns *ConflictError
	// unless force is set.
	Acquire(ctx context.Context, runID string, force bool) error

	// Refresh extends the lease while the run is still dialing.
	Refresh(ctx context.Context, runID string) error

	// Release frees the lease if runID still holds it.
	Release(ctx context.Context, runID string) error
}

const activeRunKey = "dialer:active_run"

// Acquire: take the key when free, held by us, or forced.
// Returns '' on success, otherwise the current holder.
var claimAcquireScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false or cur == ARGV[1] or ARGV[2] == '1' then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
  return ''
end
return cur
`)

// Refresh: extend only while still the holder.
var claimRefreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// Release: compare-and-delete.
var claimReleaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisClaim backs the lease with a Redis key so the rule holds across
// process replicas. The TTL prevents a leaked claim after a crash; the
// controller refreshes it on dialing activity.
type RedisClaim struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClaim(rdb *redis.Client, ttl time.Duration) (*RedisClaim, error) {
	if rdb == nil {
		return nil, errors.New("dialer: redis client is nil")
	}
	if ttl <= 0 {
		return nil, errors.New("dialer: claim ttl must be > 0")
	}
	return &RedisClaim{rdb: rdb, ttl: ttl}, nil
}

func (c *RedisClaim) Acquire(ctx context.Context, runID string, force bool) error {
	forceArg := "0"
	if force {
		forceArg = "1"
	}
	holder, err := claimAcquireScript.Run(ctx, c.rdb, []string{activeRunKey}, runID, forceArg, c.ttl.Milliseconds()).Text()
	if err != nil {
		return fmt.Errorf("dialer: acquiring active-run claim: %w", err)
	}
	if holder != "" {
		return &ConflictError{BlockingRunID: holder}
	}
	return nil
}

func (c *RedisClaim) Refresh(ctx context.Context, runID string) error {
	_, err := claimRefreshScript.Run(ctx, c.rdb, []string{activeRunKey}, runID, c.ttl.Milliseconds()).Result()
	return err
}

func (c *RedisClaim) Release(ctx context.Context, runID string) error {
	_, err := claimReleaseScript.Run(ctx, c.rdb, []string{activeRunKey}, runID).Result()
	return err
}

// MemoryClaim is an in-process Claim for tests.
type MemoryClaim struct {
	mu     sync.Mutex
	holder string
}

func NewMemoryClaim() *MemoryClaim { return &MemoryClaim{} }

func (c *MemoryClaim) Acquire(ctx context.Context, runID string, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder != "" && c.holder != runID && !force {
		return &ConflictError{BlockingRunID: c.holder}
	}
	c.holder = runID
	return nil
}

func (c *MemoryClaim) Refresh(ctx context.Context, runID string) error { return nil }

func (c *MemoryClaim) Release(ctx context.Context, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder == runID {
		c.holder = ""
	}
	return nil
}

// Holder returns the current lease holder, for test assertions.
func (c *MemoryClaim) Holder() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder
}
