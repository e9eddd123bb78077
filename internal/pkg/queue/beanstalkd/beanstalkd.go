package beanstalkd

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/beanstalkd/go-beanstalk"
	"github.com/goccy/go-json"

	"job-queue-worker/internal/pkg/logger"
	"job-queue-worker/internal/pkg/queue"
)

const (
	DefaultPriority uint32 = 1024
	DefaultTTR             = 60 * time.Second
)

// Job is a job reserved from a beanstalkd tube.
type Job struct {
	id   uint64
	body []byte
}

func (j *Job) ID() string {
	return strconv.FormatUint(j.id, 10)
}

func (j *Job) Body() string {
	return string(j.body)
}

type Option func(*BeanstalkdQueue)

func WithPriority(pri uint32) Option {
	return func(q *BeanstalkdQueue) {
		q.priority = pri
	}
}

// WithTTR sets how long a reservation lasts before beanstalkd releases the job.
func WithTTR(ttr time.Duration) Option {
	return func(q *BeanstalkdQueue) {
		q.ttr = ttr
	}
}

func WithDelay(delay time.Duration) Option {
	return func(q *BeanstalkdQueue) {
		q.delay = delay
	}
}

// BeanstalkdQueue implements queue.Queue on beanstalkd tubes. It has no lease
// of its own beyond the reservation ttr and no batch ceiling.
type BeanstalkdQueue struct {
	client   Client
	names    queue.Names
	priority uint32
	delay    time.Duration
	ttr      time.Duration
}

func New(client Client, name string, opts ...Option) *BeanstalkdQueue {
	q := &BeanstalkdQueue{
		client:   client,
		names:    queue.NewNames(name),
		priority: DefaultPriority,
		ttr:      DefaultTTR,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// GetNext reserves without waiting.
func (q *BeanstalkdQueue) GetNext(ctx context.Context) (queue.Job, error) {
	id, body, err := q.client.Reserve(q.names.Source, 0)
	if err != nil {
		if isNoJob(err) {
			return nil, nil
		}
		logger.Error("beanstalkd reserve error: %s", err)
		return nil, err
	}
	return &Job{id: id, body: body}, nil
}

func (q *BeanstalkdQueue) Successful(ctx context.Context, job queue.Job) error {
	j, err := asJob(job)
	if err != nil {
		return err
	}
	return q.client.Delete(j.id)
}

func (q *BeanstalkdQueue) Failed(ctx context.Context, job queue.Job) error {
	return q.reroute(q.names.Failed, job)
}

func (q *BeanstalkdQueue) Error(ctx context.Context, job queue.Job) error {
	return q.reroute(q.names.Error, job)
}

func (q *BeanstalkdQueue) Stopped(ctx context.Context, job queue.Job) error {
	return q.Successful(ctx, job)
}

func (q *BeanstalkdQueue) Resend(ctx context.Context, job queue.Job) error {
	return nil
}

func (q *BeanstalkdQueue) NothingToDo(ctx context.Context) {}

func (q *BeanstalkdQueue) SendJob(ctx context.Context, body string) error {
	_, err := q.client.Put(q.names.Source, []byte(body), q.priority, q.delay, q.ttr)
	return err
}

// SendJobBatch puts the jobs one by one in order. A failure stops the loop
// and leaves the jobs already put in the tube. A nil batch is rejected with
// queue.ErrInvalidParameter, an empty one is a no-op.
func (q *BeanstalkdQueue) SendJobBatch(ctx context.Context, bodies []string) error {
	if err := queue.ValidateBatch(bodies, 0); err != nil {
		return err
	}
	for _, body := range bodies {
		if err := q.SendJob(ctx, body); err != nil {
			return err
		}
	}
	return nil
}

// ChangeMessageVisibility is a no-op: beanstalkd has no visibility timeout.
func (q *BeanstalkdQueue) ChangeMessageVisibility(ctx context.Context, job queue.Job, seconds int32) error {
	return nil
}

// GetMessageBody and ToString return "" for a job this queue did not produce.
func (q *BeanstalkdQueue) GetMessageBody(job queue.Job) string {
	j, err := asJob(job)
	if err != nil {
		return ""
	}
	return j.Body()
}

func (q *BeanstalkdQueue) ToString(job queue.Job) string {
	j, err := asJob(job)
	if err != nil {
		return ""
	}
	data, _ := json.Marshal(map[string]string{"id": j.ID(), "data": j.Body()})
	return string(data)
}

// reroute puts the body in tube before deleting the job; a crash in between
// duplicates the job instead of losing it.
func (q *BeanstalkdQueue) reroute(tube string, job queue.Job) error {
	j, err := asJob(job)
	if err != nil {
		return err
	}
	if _, err := q.client.Put(tube, j.body, q.priority, q.delay, q.ttr); err != nil {
		logger.Error("unable to put job %d in tube %s: %s", j.id, tube, err)
		return err
	}
	return q.client.Delete(j.id)
}

// isNoJob reports a zero-wait reserve that found nothing. DEADLINE_SOON is
// treated the same way: nothing new can be reserved right now.
func isNoJob(err error) bool {
	var connErr beanstalk.ConnError
	if errors.As(err, &connErr) {
		return connErr.Err == beanstalk.ErrTimeout || connErr.Err == beanstalk.ErrDeadline
	}
	return false
}

func asJob(job queue.Job) (*Job, error) {
	j, ok := job.(*Job)
	if !ok || j == nil {
		return nil, queue.ErrInvalidJob
	}
	return j, nil
}
