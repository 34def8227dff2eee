package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// NewRedisClient builds a client from config. It does not dial.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// RedisSlotCache stores slot listings as JSON with a fixed TTL.
type RedisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration) *RedisSlotCache {
	return &RedisSlotCache{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisSlotCache) Get(ctx context.Context, key string) ([]models.Slot, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get slots from redis: %w", err)
	}

	var list []models.Slot
	if err := json.Unmarshal(val, &list); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	return list, true, nil
}

func (r *RedisSlotCache) Set(ctx context.Context, key string, list []models.Slot) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set slots in redis: %w", err)
	}
	return nil
}

// releaseScript deletes the lock only while it still carries the owner's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance advisory lock built on SET NX PX.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	lockKey := "lock:" + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{lockKey}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close tolerates a nil client.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
