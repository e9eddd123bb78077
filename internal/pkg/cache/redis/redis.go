package redisCache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"job-queue-worker/internal/pkg/cache"
)

// RedisRepository implements the cache.Client interface using Redis as backend.
type RedisRepository struct {
	Client *redis.Client // Redis client instance
	Config *Config       // Configuration for Redis cache
}

type Config struct {
	KeyPrefix string // Prefix for every key in Redis
}

// NewClient creates a new redis client
func NewClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   "",
		DB:         db,
		MaxRetries: 10,
	})
}

func New(client *redis.Client, cfg *Config) *RedisRepository {
	return &RedisRepository{Client: client, Config: cfg}
}

// Get retrieves a value by key from Redis.
func (r *RedisRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := r.Client.Get(ctx, r.Config.KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", cache.ErrNotFound
	}
	return value, err
}

// Set sets a value with expiration in Redis.
func (r *RedisRepository) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return r.Client.Set(ctx, r.Config.KeyPrefix+key, value, expiration).Err()
}

// Delete removes a key from Redis.
func (r *RedisRepository) Delete(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.Config.KeyPrefix+key).Err()
}
