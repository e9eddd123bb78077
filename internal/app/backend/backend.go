package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"job-queue-worker/configs"
	"job-queue-worker/internal/pkg/cache"
	redisCache "job-queue-worker/internal/pkg/cache/redis"
	"job-queue-worker/internal/pkg/locker"
	redisLocker "job-queue-worker/internal/pkg/locker/redis"
	"job-queue-worker/internal/pkg/logger"
	"job-queue-worker/internal/pkg/queue"
	"job-queue-worker/internal/pkg/queue/beanstalkd"
	redisQueue "job-queue-worker/internal/pkg/queue/redis"
	"job-queue-worker/internal/pkg/queue/sqs"
	"job-queue-worker/internal/pkg/utils"
)

// Backend holds the clients shared by every queue instance of a process.
// beanstalkd connections are not shared: each queue dials its own.
type Backend struct {
	cfg *configs.Config

	sqsClient    *awssqs.Client
	redisClient  *redis.Client
	lockerClient *redis.Client
	locker       locker.Locker
	cacheClient  *redis.Client
	records      cache.Client
}

// New creates the shared clients for cfg.QueueType.
func New(ctx context.Context, cfg *configs.Config) (*Backend, error) {
	b := &Backend{cfg: cfg}

	switch cfg.QueueType {
	case configs.QueueTypeSQS:
		client, err := sqs.NewClient(ctx, cfg.QueueAwsSqsRegion, cfg.QueueAwsSqsEndpoint)
		if err != nil {
			return nil, fmt.Errorf("unable to create sqs client: %w", err)
		}
		b.sqsClient = client
		if cfg.LockerEnabled {
			b.lockerClient = redisLocker.NewClient(cfg.LockerRedisEndpoint, cfg.LockerRedisDB)
			b.locker = redisLocker.New(b.lockerClient, &redisLocker.Config{KeyPrefix: cfg.LockerKeyPrefix})
			logger.Info("Locker enabled: %s", b.locker.Describe())
		}
	case configs.QueueTypeBeanstalkd:
	case configs.QueueTypeRedis:
		b.redisClient = redisQueue.NewClient(cfg.QueueRedisEndpoint, cfg.QueueRedisDB)
		if err := ping(ctx, b.redisClient); err != nil {
			_ = b.redisClient.Close()
			return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.QueueRedisEndpoint, err)
		}
	default:
		return nil, fmt.Errorf("unsupported queue type %q", cfg.QueueType)
	}

	if cfg.CacheEnabled {
		b.cacheClient = redisCache.NewClient(cfg.CacheRedisEndpoint, cfg.CacheRedisDB)
		b.records = redisCache.New(b.cacheClient, &redisCache.Config{KeyPrefix: cfg.CacheJobKeyPrefix})
	}

	return b, nil
}

// Records returns the store of delivered job ids, nil when disabled.
func (b *Backend) Records() cache.Client {
	return b.records
}

// NewQueue returns a queue instance for one worker together with the function
// releasing what the instance owns.
func (b *Backend) NewQueue(ctx context.Context) (queue.Queue, func() error, error) {
	noop := func() error { return nil }

	switch b.cfg.QueueType {
	case configs.QueueTypeSQS:
		opts := []sqs.Option{
			sqs.WithWaitTimeSeconds(b.cfg.QueueAwsSqsWaitTimeSeconds),
			sqs.WithVisibilityTimeout(b.cfg.QueueAwsSqsVisibility),
		}
		if b.locker != nil {
			opts = append(opts, sqs.WithLocker(b.locker))
		}
		q, err := sqs.New(ctx, b.sqsClient, b.cfg.QueueName, opts...)
		if err != nil {
			return nil, nil, err
		}
		return q, noop, nil

	case configs.QueueTypeBeanstalkd:
		conn, err := beanstalkd.Dial(b.cfg.QueueBeanstalkdAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to dial beanstalkd at %s: %w", b.cfg.QueueBeanstalkdAddr, err)
		}
		q := beanstalkd.New(conn, b.cfg.QueueName,
			beanstalkd.WithPriority(b.cfg.QueueBeanstalkdPriority),
			beanstalkd.WithTTR(b.cfg.QueueBeanstalkdTTRDuration),
		)
		return q, conn.Close, nil

	case configs.QueueTypeRedis:
		q := redisQueue.New(b.redisClient, b.cfg.QueueName, &redisQueue.Config{
			KeyPrefix:         b.cfg.QueueRedisKeyPrefix,
			WaitTime:          b.cfg.QueueRedisWaitTimeDuration,
			VisibilityTimeout: b.cfg.QueueRedisVisibilityDuration,
		})
		return q, noop, nil
	}

	return nil, nil, fmt.Errorf("unsupported queue type %q", b.cfg.QueueType)
}

// Close releases the shared clients.
func (b *Backend) Close() error {
	var errs []error
	if b.redisClient != nil {
		errs = append(errs, b.redisClient.Close())
	}
	if b.lockerClient != nil {
		errs = append(errs, b.lockerClient.Close())
	}
	if b.cacheClient != nil {
		errs = append(errs, b.cacheClient.Close())
	}
	return errors.Join(errs...)
}

func ping(ctx context.Context, client *redis.Client) error {
	_, err := utils.Retry(ctx, 3, 500*time.Millisecond, func() (string, error) {
		return client.Ping(ctx).Result()
	})
	return err
}
