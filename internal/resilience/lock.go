package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Lock.Acquire when another holder currently
// owns the lock.
var ErrLockHeld = errors.New("lock held by another owner")

// Lock is a Redis-backed distributed mutex, value = holder id, guarded
// by a TTL. Used by SummaryCache for single-flight regeneration.
type Lock struct {
	redis    *redis.Client
	key      string
	ttl      time.Duration
	holderID string
}

// NewLock creates a Lock for the given key (e.g. "lock:summary_gen:{tenant}:{entry}").
func NewLock(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		redis:    rdb,
		key:      key,
		ttl:      ttl,
		holderID: uuid.New().String(),
	}
}

// Acquire attempts to take the lock via SET NX PX. Returns ErrLockHeld
// if another holder currently owns it.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.redis.SetNX(ctx, l.key, l.holderID, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquiring lock %s: %w", l.key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Refresh extends the TTL if this holder still owns the lock.
func (l *Lock) Refresh(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
	res, err := script.Run(ctx, l.redis, []string{l.key}, l.holderID, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refreshing lock %s: %w", l.key, err)
	}
	if res == 0 {
		return ErrLockHeld
	}
	return nil
}

// Release drops the lock, but only if this holder still owns it —
// a compare-and-delete via Lua script to avoid releasing a lock another
// holder acquired after this one's TTL expired.
func (l *Lock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	if _, err := script.Run(ctx, l.redis, []string{l.key}, l.holderID).Result(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.key, err)
	}
	return nil
}

// HolderID returns this Lock instance's holder identity.
func (l *Lock) HolderID() string {
	return l.holderID
}
