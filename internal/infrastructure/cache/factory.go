package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/clinic/ledger/internal/domain/shared"
	"github.com/clinic/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// IdempotencyStoreFactory chooses between the Redis and in-memory stores
type IdempotencyStoreFactory struct {
	redis    config.RedisConfig
	log      *zap.Logger
	fallback bool
	sweep    time.Duration
}

// IdempotencyStoreFactoryOption configures the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

func WithLogger(log *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) { f.log = log }
}

// WithInMemoryFallback decides what happens when Redis is enabled but cannot
// be reached: degrade to the in-memory store (the default) or fail.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) { f.fallback = allow }
}

// WithSweepInterval sets how often the in-memory store drops expired keys
func WithSweepInterval(d time.Duration) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) { f.sweep = d }
}

func NewIdempotencyStoreFactory(cfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{redis: cfg, log: zap.NewNop(), fallback: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore connects to Redis when it is enabled. A disabled Redis, or an
// unreachable one with fallback allowed, yields the in-memory store.
func (f *IdempotencyStoreFactory) CreateStore(ctx context.Context) (shared.IdempotencyStore, error) {
	if !f.redis.Enabled {
		f.log.Info("idempotency store selected", zap.String("backend", "memory"))
		return NewInMemoryIdempotencyStore(f.sweep), nil
	}

	addr := f.redis.Addr()
	store, err := NewRedisIdempotencyStore(ctx, RedisConfig{Addr: addr, Password: f.redis.Password, DB: f.redis.DB})
	switch {
	case err == nil:
		f.log.Info("idempotency store selected", zap.String("backend", "redis"), zap.String("addr", addr))
		return store, nil
	case !f.fallback:
		return nil, fmt.Errorf("idempotency store: redis at %s unavailable: %w", addr, err)
	}

	// keys are now only deduplicated within this process
	f.log.Warn("redis unreachable, using in-memory idempotency store",
		zap.String("addr", addr),
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(f.sweep), nil
}
