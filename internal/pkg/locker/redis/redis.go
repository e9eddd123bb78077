package redisLocker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements the locker.Locker interface with SET NX on Redis.
type RedisLocker struct {
	Client *redis.Client // Redis client instance
	Config *Config       // Configuration for the locker
	owner  string
}

type Config struct {
	KeyPrefix string // Prefix for lock keys in Redis
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

// New creates a RedisLocker whose locks are owned by a fresh process id.
func New(client *redis.Client, cfg *Config) *RedisLocker {
	return &RedisLocker{
		Client: client,
		Config: cfg,
		owner:  uuid.NewString(),
	}
}

// Acquire sets the lock key only if it does not exist yet.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Client.SetNX(ctx, l.UniqueID(key), l.owner, ttl).Result()
}

// UniqueID hashes the key so arbitrary job bodies map to short Redis keys.
func (l *RedisLocker) UniqueID(key string) string {
	return l.Config.KeyPrefix + strconv.FormatUint(xxhash.Sum64String(key), 16)
}

func (l *RedisLocker) Describe() string {
	opts := l.Client.Options()
	return fmt.Sprintf("redis(addr=%s, db=%d, prefix=%s, owner=%s)", opts.Addr, opts.DB, l.Config.KeyPrefix, l.owner)
}
