package lock

import (
	"fmt"

	appintake "github.com/erp/invsync/internal/application/intake"
	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdentityLocker builds the locker selected by intake.lock_driver.
// The redis driver needs a connected client.
func NewIdentityLocker(cfg config.IntakeConfig, client redis.UniversalClient, logger *zap.Logger) (appintake.IdentityLocker, error) {
	switch cfg.LockDriver {
	case config.StoreRedis:
		if client == nil {
			return nil, fmt.Errorf("redis identity lock requires a redis client")
		}
		logger.Info("using Redis identity lock", zap.Duration("ttl", cfg.LockTTL))
		return NewRedisLocker(client, RedisLockerConfig{
			TTL:           cfg.LockTTL,
			RetryInterval: cfg.LockRetryInterval,
			Retries:       cfg.LockRetries,
		}), nil
	case config.StoreMemory, "":
		logger.Warn("using in-process identity lock; run a single instance or switch to redis")
		return NewLocalLocker(), nil
	default:
		return nil, fmt.Errorf("unknown identity lock driver %q", cfg.LockDriver)
	}
}
