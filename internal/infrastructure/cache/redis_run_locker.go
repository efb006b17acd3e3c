package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/pricedragon/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "pricedragon:runlock:"

// RedisRunLocker implements RunLocker using Redis so that several
// processes share one lock per platform
type RedisRunLocker struct {
	client    redis.UniversalClient
	locker    *redislock.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisRunLocker connects to Redis and creates a locker
func NewRedisRunLocker(ctx context.Context, cfg RedisConfig) (*RedisRunLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRunLockerWithClient(client, ""), nil
}

// NewRedisRunLockerWithClient creates a locker with an existing Redis client
func NewRedisRunLockerWithClient(client redis.UniversalClient, keyPrefix string) *RedisRunLocker {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisRunLocker{
		client:    client,
		locker:    redislock.New(client),
		keyPrefix: keyPrefix,
	}
}

// Acquire obtains a redislock lease; the lock is not retried
func (l *RedisRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.locker.Obtain(ctx, l.keyPrefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, shared.ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}

	return func(ctx context.Context) error {
		// An expired lease is not an error for the holder.
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("failed to release run lock: %w", err)
		}
		return nil
	}, nil
}

// Close closes the Redis client
func (l *RedisRunLocker) Close() error {
	return l.client.Close()
}

// Ensure RedisRunLocker implements RunLocker
var _ shared.RunLocker = (*RedisRunLocker)(nil)
