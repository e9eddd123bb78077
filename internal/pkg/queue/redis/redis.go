package redisQueue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"job-queue-worker/internal/pkg/logger"
	"job-queue-worker/internal/pkg/queue"
)

const (
	DefaultWaitTime          = 5 * time.Second
	DefaultVisibilityTimeout = 30 * time.Second
)

type Config struct {
	KeyPrefix         string        // Prefix for every queue key
	WaitTime          time.Duration // Block time of GetNext, 0 polls without blocking
	VisibilityTimeout time.Duration // Lease taken on every job handed out
}

// envelope is what is stored in the lists. The id keeps equal bodies apart,
// so LREM removes exactly the delivery it was asked to.
type envelope struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// Job is a job moved to the processing list.
type Job struct {
	raw string
	env envelope
}

func (j *Job) ID() string {
	return j.env.ID
}

func (j *Job) Body() string {
	return j.env.Body
}

// RedisQueue implements queue.Queue on Redis lists. Jobs handed out move to
// a processing list and get a lease deadline in a sorted set; expired leases
// are pushed back to the source list by NothingToDo.
type RedisQueue struct {
	Client *redis.Client // Redis client
	Config *Config       // Configuration for Redis queue

	sourceKey     string
	failedKey     string
	errorKey      string
	processingKey string
	leasesKey     string
	now           func() time.Time
}

// NewClient creates a new redis client
func NewClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
}

func New(client *redis.Client, name string, cfg *Config) *RedisQueue {
	names := queue.NewNames(name)
	return &RedisQueue{
		Client:        client,
		Config:        cfg,
		sourceKey:     cfg.KeyPrefix + names.Source,
		failedKey:     cfg.KeyPrefix + names.Failed,
		errorKey:      cfg.KeyPrefix + names.Error,
		processingKey: cfg.KeyPrefix + names.Source + ":processing",
		leasesKey:     cfg.KeyPrefix + names.Source + ":leases",
		now:           time.Now,
	}
}

// GetNext moves the oldest job to the processing list and leases it.
func (q *RedisQueue) GetNext(ctx context.Context) (queue.Job, error) {
	var (
		raw string
		err error
	)
	if q.Config.WaitTime > 0 {
		raw, err = q.Client.BLMove(ctx, q.sourceKey, q.processingKey, "RIGHT", "LEFT", q.Config.WaitTime).Result()
	} else {
		raw, err = q.Client.LMove(ctx, q.sourceKey, q.processingKey, "RIGHT", "LEFT").Result()
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		logger.Error("redis queue move error: %s", err)
		return nil, err
	}

	if err := q.Client.ZAdd(ctx, q.leasesKey, redis.Z{Score: q.deadline(q.Config.VisibilityTimeout), Member: raw}).Err(); err != nil {
		logger.Error("redis queue lease error: %s", err)
		q.unmove(context.WithoutCancel(ctx), raw)
		return nil, err
	}
	return &Job{raw: raw, env: openEnvelope(raw)}, nil
}

// unmove puts an entry taken by GetNext back at the head of the source list.
// Without a lease NothingToDo would never find it again.
func (q *RedisQueue) unmove(ctx context.Context, raw string) {
	_, err := q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey, 1, raw)
		pipe.RPush(ctx, q.sourceKey, raw)
		return nil
	})
	if err != nil {
		logger.Error("unable to return job to %s, it stays in %s: %s", q.sourceKey, q.processingKey, err)
	}
}

func (q *RedisQueue) Successful(ctx context.Context, job queue.Job) error {
	return q.finish(ctx, "", job)
}

func (q *RedisQueue) Failed(ctx context.Context, job queue.Job) error {
	return q.finish(ctx, q.failedKey, job)
}

func (q *RedisQueue) Error(ctx context.Context, job queue.Job) error {
	return q.finish(ctx, q.errorKey, job)
}

func (q *RedisQueue) Stopped(ctx context.Context, job queue.Job) error {
	return q.finish(ctx, "", job)
}

func (q *RedisQueue) Resend(ctx context.Context, job queue.Job) error {
	return nil
}

// NothingToDo pushes jobs whose lease expired back to the source list.
func (q *RedisQueue) NothingToDo(ctx context.Context) {
	expired, err := q.Client.ZRangeByScore(ctx, q.leasesKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(q.deadline(0), 'f', 0, 64),
	}).Result()
	if err != nil {
		logger.Error("unable to list expired leases: %s", err)
		return
	}

	for _, raw := range expired {
		// only the caller that actually removes the entry may requeue it
		removed, err := q.Client.LRem(ctx, q.processingKey, 1, raw).Result()
		if err != nil {
			logger.Error("unable to release expired job: %s", err)
			return
		}
		_, err = q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if removed > 0 {
				pipe.RPush(ctx, q.sourceKey, raw)
			}
			pipe.ZRem(ctx, q.leasesKey, raw)
			return nil
		})
		if err != nil {
			logger.Error("unable to requeue expired job: %s", err)
			return
		}
	}
}

func (q *RedisQueue) SendJob(ctx context.Context, body string) error {
	raw, err := newEnvelope(body)
	if err != nil {
		return err
	}
	return q.Client.LPush(ctx, q.sourceKey, raw).Err()
}

// SendJobBatch pushes all jobs with a single LPUSH. There is no batch ceiling.
// A nil batch is rejected with queue.ErrInvalidParameter, an empty one is a no-op.
func (q *RedisQueue) SendJobBatch(ctx context.Context, bodies []string) error {
	if err := queue.ValidateBatch(bodies, 0); err != nil {
		return err
	}
	if len(bodies) == 0 {
		return nil
	}
	values := make([]any, 0, len(bodies))
	for _, body := range bodies {
		raw, err := newEnvelope(body)
		if err != nil {
			return err
		}
		values = append(values, raw)
	}
	return q.Client.LPush(ctx, q.sourceKey, values...).Err()
}

// ChangeMessageVisibility moves the lease deadline of an in-flight job.
func (q *RedisQueue) ChangeMessageVisibility(ctx context.Context, job queue.Job, seconds int32) error {
	j, err := asJob(job)
	if err != nil {
		return err
	}
	deadline := q.deadline(time.Duration(seconds) * time.Second)
	return q.Client.ZAddXX(ctx, q.leasesKey, redis.Z{Score: deadline, Member: j.raw}).Err()
}

// GetMessageBody and ToString return "" for a job this queue did not produce.
func (q *RedisQueue) GetMessageBody(job queue.Job) string {
	j, err := asJob(job)
	if err != nil {
		return ""
	}
	return j.Body()
}

func (q *RedisQueue) ToString(job queue.Job) string {
	j, err := asJob(job)
	if err != nil {
		return ""
	}
	data, _ := json.Marshal(j.env)
	return string(data)
}

// finish removes the job from the processing list, pushing it to dest first
// when dest is set. Both happen in one MULTI/EXEC.
func (q *RedisQueue) finish(ctx context.Context, dest string, job queue.Job) error {
	j, err := asJob(job)
	if err != nil {
		return err
	}
	_, err = q.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if dest != "" {
			pipe.LPush(ctx, dest, j.raw)
		}
		pipe.LRem(ctx, q.processingKey, 1, j.raw)
		pipe.ZRem(ctx, q.leasesKey, j.raw)
		return nil
	})
	return err
}

func (q *RedisQueue) deadline(after time.Duration) float64 {
	return float64(q.now().Add(after).UnixMilli())
}

// openEnvelope decodes an entry written by SendJob. Anything else, including
// JSON documents lacking the envelope fields, is the body itself.
func openEnvelope(raw string) envelope {
	var decoded struct {
		ID   string  `json:"id"`
		Body *string `json:"body"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil || decoded.ID == "" || decoded.Body == nil {
		return envelope{Body: raw}
	}
	return envelope{ID: decoded.ID, Body: *decoded.Body}
}

func newEnvelope(body string) (string, error) {
	data, err := json.Marshal(envelope{ID: uuid.NewString(), Body: body})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func asJob(job queue.Job) (*Job, error) {
	j, ok := job.(*Job)
	if !ok || j == nil {
		return nil, queue.ErrInvalidJob
	}
	return j, nil
}
