package firmware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koios/trmnl-renderer/internal/config"
	"github.com/koios/trmnl-renderer/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const redisFirmwareKey = "trmnl:firmware:latest"

// RedisStore shares the firmware descriptor between renderer replicas.
// Expiry is delegated to the Redis key TTL.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store backed by a new Redis client
func NewRedisStore(cfg *config.RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return NewRedisStoreFromClient(rdb)
}

// NewRedisStoreFromClient creates a store from an existing client
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		key:    redisFirmwareKey,
	}
}

// Ping tests the Redis connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Get retrieves the descriptor from Redis
func (r *RedisStore) Get(ctx context.Context) (*models.Firmware, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key %s from Redis: %w", r.key, err)
	}

	var fw models.Firmware
	if err := msgpack.Unmarshal(data, &fw); err != nil {
		return nil, false, fmt.Errorf("failed to decode firmware descriptor: %w", err)
	}

	return &fw, true, nil
}

// Set stores the descriptor with the given TTL
func (r *RedisStore) Set(ctx context.Context, fw *models.Firmware, ttl time.Duration) error {
	data, err := msgpack.Marshal(fw)
	if err != nil {
		return fmt.Errorf("failed to encode firmware descriptor: %w", err)
	}

	if err := r.client.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in Redis: %w", r.key, err)
	}

	return nil
}

// Flush removes the cached descriptor
func (r *RedisStore) Flush(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", r.key, err)
	}
	return nil
}
