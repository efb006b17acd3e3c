package cache

import (
	"context"
	"fmt"

	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RunLockerFactory creates run lockers based on configuration
type RunLockerFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RunLockerFactoryOption is a functional option for configuring the factory
type RunLockerFactoryOption func(*RunLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RunLockerFactoryOption {
	return func(f *RunLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-process locker
// when Redis is configured but unreachable. Default is true.
func WithInMemoryFallback(allow bool) RunLockerFactoryOption {
	return func(f *RunLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRunLockerFactory creates a new factory
func NewRunLockerFactory(cfg config.RedisConfig, opts ...RunLockerFactoryOption) *RunLockerFactory {
	f := &RunLockerFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create returns a Redis locker when Redis is configured, otherwise an
// in-memory one
func (f *RunLockerFactory) Create(ctx context.Context) (shared.RunLocker, error) {
	addr := f.redisConfig.Addr()
	if addr == "" {
		f.logger.Info("Redis not configured, using in-memory run locker")
		return NewInMemoryRunLocker(), nil
	}

	locker, err := NewRedisRunLocker(ctx, RedisConfig{
		Addr:     addr,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("Using Redis run locker", zap.String("addr", addr))
		return locker, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for run locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory run locker. "+
		"Concurrent runs from other instances will not be excluded.",
		zap.Error(err),
	)
	return NewInMemoryRunLocker(), nil
}
