package cache

import (
	"fmt"

	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore builds the store selected by consumer.idempotency_store.
// The redis driver needs a connected client.
func NewIdempotencyStore(cfg config.ConsumerConfig, client redis.UniversalClient, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch cfg.IdempotencyStore {
	case config.StoreRedis:
		if client == nil {
			return nil, fmt.Errorf("redis idempotency store requires a redis client")
		}
		logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, DefaultIdempotencyKeyPrefix), nil
	case config.StoreMemory, "":
		logger.Warn("using in-memory idempotency store; replicas of a consumer will not share it")
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", cfg.IdempotencyStore)
	}
}
