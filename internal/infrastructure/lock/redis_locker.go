package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	appintake "github.com/erp/invsync/internal/application/intake"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when the key stayed held for every retry
var ErrLockNotObtained = errors.New("lock not obtained")

// RedisLockerConfig tunes how long a lock is held and how hard it is chased
type RedisLockerConfig struct {
	TTL           time.Duration
	RetryInterval time.Duration
	Retries       int
}

// RedisLocker serializes work per key across processes with a Redis lock.
// A lock that outlives its TTL is lost; callers keep a unique index behind it.
type RedisLocker struct {
	client *redislock.Client
	config RedisLockerConfig
}

// NewRedisLocker creates a locker on the given Redis client
func NewRedisLocker(client redis.UniversalClient, config RedisLockerConfig) *RedisLocker {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 100 * time.Millisecond
	}
	return &RedisLocker{
		client: redislock.New(client),
		config: config,
	}
}

// Lock obtains key, retrying on a linear backoff
func (l *RedisLocker) Lock(ctx context.Context, key string) (appintake.Unlock, error) {
	var strategy redislock.RetryStrategy = redislock.NoRetry()
	if l.config.Retries > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(l.config.RetryInterval), l.config.Retries)
	}

	held, err := l.client.Obtain(ctx, key, l.config.TTL, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		err := held.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("lock %s expired before release", key)
		}
		return err
	}, nil
}

var _ appintake.IdentityLocker = (*RedisLocker)(nil)
