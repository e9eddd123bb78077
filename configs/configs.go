package configs

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	QueueTypeSQS        = "sqs"
	QueueTypeBeanstalkd = "beanstalkd"
	QueueTypeRedis      = "redis"
)

// Config defines all environment variables and derived config for the worker.
type Config struct {
	// Transformed time.Duration fields (not loaded from env directly)
	PollingIntervalDuration        time.Duration `env:"-"`
	QueueBeanstalkdTTRDuration     time.Duration `env:"-"`
	QueueRedisWaitTimeDuration     time.Duration `env:"-"`
	QueueRedisVisibilityDuration   time.Duration `env:"-"`
	CallbackRequestTimeoutDuration time.Duration `env:"-"`
	CacheJobTTLDuration            time.Duration `env:"-"`

	QueueType                  string `env:"QUEUE_TYPE" envDefault:"sqs" validate:"oneof=sqs beanstalkd redis"`
	QueueName                  string `env:"QUEUE_NAME,required" validate:"required"`
	QueueWorkerPoolSize        int    `env:"QUEUE_WORKER_POOL_SIZE" envDefault:"1" validate:"min=1,max=10"`
	QueueWorkerMaxIterations   int    `env:"QUEUE_WORKER_MAX_ITERATIONS" envDefault:"0" validate:"min=0"`
	PollingInterval            int    `env:"POLLING_INTERVAL" envDefault:"1" validate:"min=0"`
	QueueAwsSqsRegion          string `env:"QUEUE_AWS_SQS_REGION"`
	QueueAwsSqsEndpoint        string `env:"QUEUE_AWS_SQS_ENDPOINT" validate:"omitempty,url"`
	QueueAwsSqsWaitTimeSeconds int32  `env:"QUEUE_AWS_SQS_WAIT_TIME_SECONDS" envDefault:"20" validate:"min=0,max=20"`
	QueueAwsSqsVisibility      int32  `env:"QUEUE_AWS_SQS_VISIBILITY_TIMEOUT" envDefault:"30" validate:"min=0,max=43200"`
	QueueBeanstalkdAddr        string `env:"QUEUE_BEANSTALKD_ADDR" envDefault:"127.0.0.1:11300"`
	QueueBeanstalkdPriority    uint32 `env:"QUEUE_BEANSTALKD_PRIORITY" envDefault:"1024"`
	QueueBeanstalkdTTR         int    `env:"QUEUE_BEANSTALKD_TTR" envDefault:"60" validate:"min=1"`
	QueueRedisEndpoint         string `env:"REDIS_QUEUE_ENDPOINT"`
	QueueRedisDB               int    `env:"REDIS_QUEUE_DB" envDefault:"0"`
	QueueRedisKeyPrefix        string `env:"REDIS_QUEUE_KEY_PREFIX" envDefault:"queue-"`
	QueueRedisWaitTime         int    `env:"REDIS_QUEUE_WAIT_TIME_SECONDS" envDefault:"5" validate:"min=0"`
	QueueRedisVisibility       int    `env:"REDIS_QUEUE_VISIBILITY_TIMEOUT" envDefault:"30" validate:"min=1"`

	LockerEnabled       bool   `env:"LOCKER_ENABLED" envDefault:"false"`
	LockerRedisEndpoint string `env:"LOCKER_REDIS_ENDPOINT"`
	LockerRedisDB       int    `env:"LOCKER_REDIS_DB" envDefault:"0"`
	LockerKeyPrefix     string `env:"LOCKER_KEY_PREFIX" envDefault:"job-lock-"`

	CacheEnabled       bool   `env:"CACHE_ENABLED" envDefault:"false"`
	CacheRedisEndpoint string `env:"CACHE_REDIS_ENDPOINT"`
	CacheRedisDB       int    `env:"CACHE_REDIS_DB" envDefault:"0"`
	CacheJobKeyPrefix  string `env:"CACHE_JOB_KEY_PREFIX" envDefault:"job-done-"`
	CacheJobTTL        int    `env:"CACHE_JOB_TTL" envDefault:"86400" validate:"min=0"`

	CallbackMaxRetries     int `env:"CALLBACK_MAX_RETRIES" envDefault:"3" validate:"min=1"`
	CallbackRequestTimeout int `env:"CALLBACK_TIMEOUT" envDefault:"30" validate:"min=1"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

// Parse loads configuration from environment variables, validates and normalizes it.
func Parse() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.normalize()

	return &cfg, nil
}

// validate performs all required configuration checks.
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.QueueType {
	case QueueTypeSQS:
		if c.QueueAwsSqsRegion == "" {
			return errors.New("QUEUE_AWS_SQS_REGION is required for SQS queue type")
		}
	case QueueTypeBeanstalkd:
		if c.QueueBeanstalkdAddr == "" {
			return errors.New("QUEUE_BEANSTALKD_ADDR is required for beanstalkd queue type")
		}
	case QueueTypeRedis:
		if c.QueueRedisEndpoint == "" {
			return errors.New("REDIS_QUEUE_ENDPOINT is required for Redis queue type")
		}
	}

	if c.LockerEnabled {
		if c.QueueType != QueueTypeSQS {
			return errors.New("LOCKER_ENABLED is only supported for SQS queue type")
		}
		if c.LockerRedisEndpoint == "" {
			return errors.New("LOCKER_REDIS_ENDPOINT is required when LOCKER_ENABLED is set")
		}
	}

	if c.CacheEnabled && c.CacheRedisEndpoint == "" {
		return errors.New("CACHE_REDIS_ENDPOINT is required when CACHE_ENABLED is set")
	}

	return nil
}

// normalize converts int values to duration and sets derived fields.
func (c *Config) normalize() {
	c.PollingIntervalDuration = time.Duration(c.PollingInterval) * time.Second
	c.QueueBeanstalkdTTRDuration = time.Duration(c.QueueBeanstalkdTTR) * time.Second
	c.QueueRedisWaitTimeDuration = time.Duration(c.QueueRedisWaitTime) * time.Second
	c.QueueRedisVisibilityDuration = time.Duration(c.QueueRedisVisibility) * time.Second
	c.CallbackRequestTimeoutDuration = time.Duration(c.CallbackRequestTimeout) * time.Second
	c.CacheJobTTLDuration = time.Duration(c.CacheJobTTL) * time.Second
}
