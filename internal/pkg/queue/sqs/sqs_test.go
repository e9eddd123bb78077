package sqs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-queue-worker/internal/pkg/queue"
)

var _ queue.Queue = (*SqsQueue)(nil)

type stubLocker struct {
	acquire bool
	err     error
	keys    []string
	ttls    []time.Duration
}

func (l *stubLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	return l.acquire, l.err
}

func (l *stubLocker) UniqueID(key string) string { return "lock-" + key }

func (l *stubLocker) Describe() string { return "stub locker" }

type otherJob struct{}

func (otherJob) ID() string   { return "1" }
func (otherJob) Body() string { return "body" }

func newTestQueue(t *testing.T, opts ...Option) (*SqsQueue, *fakeSQS) {
	t.Helper()

	fake := newFakeSQS("jobs", "jobs-failed", "jobs-error")
	q, err := New(context.Background(), fake, "jobs", opts...)
	require.NoError(t, err)
	return q, fake
}

func drain(t *testing.T, q *SqsQueue) []string {
	t.Helper()

	var bodies []string
	for {
		job, err := q.GetNext(context.Background())
		require.NoError(t, err)
		if job == nil {
			return bodies
		}
		bodies = append(bodies, q.GetMessageBody(job))
		require.NoError(t, q.Successful(context.Background(), job))
	}
}

func TestNew_ResolvesQueueURLs(t *testing.T) {
	q, _ := newTestQueue(t)

	assert.Equal(t, fakeURLPrefix+"jobs", q.sourceQueueURL)
	assert.Equal(t, fakeURLPrefix+"jobs-failed", q.failedQueueURL)
	assert.Equal(t, fakeURLPrefix+"jobs-error", q.errorQueueURL)
}

func TestNew_MissingQueue(t *testing.T) {
	fake := newFakeSQS("jobs", "jobs-failed")

	q, err := New(context.Background(), fake, "jobs")
	assert.ErrorIs(t, err, errFakeQueueDoesNotExist)
	assert.Nil(t, q)
}

func TestNew_URLOptionsSkipLookup(t *testing.T) {
	fake := newFakeSQS("jobs")

	q, err := New(context.Background(), fake, "jobs",
		WithFailedQueueURL("https://elsewhere/failed"),
		WithErrorQueueURL("https://elsewhere/error"),
	)
	require.NoError(t, err)
	assert.Equal(t, "https://elsewhere/failed", q.failedQueueURL)
	assert.Equal(t, "https://elsewhere/error", q.errorQueueURL)
}

func TestGetNext_Empty(t *testing.T) {
	q, fake := newTestQueue(t, WithWaitTimeSeconds(5), WithVisibilityTimeout(45))

	job, err := q.GetNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)

	require.Len(t, fake.receiveInputs, 1)
	input := fake.receiveInputs[0]
	assert.Equal(t, int32(1), input.MaxNumberOfMessages)
	assert.Equal(t, int32(5), input.WaitTimeSeconds)
	assert.Equal(t, int32(45), input.VisibilityTimeout)
}

func TestSuccessful(t *testing.T) {
	q, fake := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "job-1"))

	job, err := q.GetNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", q.GetMessageBody(job))

	require.NoError(t, q.Successful(ctx, job))
	assert.Zero(t, fake.inFlightCount())

	job, err = q.GetNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFailedAndError(t *testing.T) {
	testCases := []struct {
		name   string
		route  func(*SqsQueue, context.Context, queue.Job) error
		target string
		other  string
	}{
		{name: "failed", route: (*SqsQueue).Failed, target: "jobs-failed", other: "jobs-error"},
		{name: "error", route: (*SqsQueue).Error, target: "jobs-error", other: "jobs-failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, fake := newTestQueue(t)
			ctx := context.Background()
			require.NoError(t, q.SendJob(ctx, `{"id":"42"}`))

			job, err := q.GetNext(ctx)
			require.NoError(t, err)
			require.NotNil(t, job)

			require.NoError(t, tc.route(q, ctx, job))

			assert.Equal(t, []string{`{"id":"42"}`}, fake.bodies(tc.target))
			assert.Empty(t, fake.bodies(tc.other))
			assert.Empty(t, fake.bodies("jobs"))
			assert.Zero(t, fake.inFlightCount())
		})
	}
}

func TestFailed_SendErrorKeepsMessage(t *testing.T) {
	q, fake := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "job"))
	job, err := q.GetNext(ctx)
	require.NoError(t, err)

	transportErr := errors.New("throttled")
	fake.sendErr = transportErr

	err = q.Failed(ctx, job)
	assert.ErrorIs(t, err, transportErr)
	assert.Equal(t, 1, fake.inFlightCount(), "message must not be deleted when re-routing failed")
}

func TestStopped(t *testing.T) {
	q, fake := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "job"))
	job, err := q.GetNext(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Stopped(ctx, job))
	assert.Zero(t, fake.inFlightCount())
	assert.Empty(t, fake.bodies("jobs-failed"))
	assert.Empty(t, fake.bodies("jobs-error"))
}

func TestNoOps(t *testing.T) {
	q, fake := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "job"))
	job, err := q.GetNext(ctx)
	require.NoError(t, err)

	q.NothingToDo(ctx)
	require.NoError(t, q.Resend(ctx, job))
	assert.Equal(t, 1, fake.inFlightCount())
}

func TestSendJobBatch(t *testing.T) {
	q, fake := newTestQueue(t)
	ctx := context.Background()

	bodies := make([]string, queue.MaxBatchSize)
	for i := range bodies {
		bodies[i] = fmt.Sprintf("job-%d", i)
	}
	require.NoError(t, q.SendJobBatch(ctx, bodies))
	assert.Equal(t, 1, fake.batchCalls)

	assert.ElementsMatch(t, bodies, drain(t, q))
}

func TestSendJobBatch_TooLarge(t *testing.T) {
	q, fake := newTestQueue(t)

	bodies := make([]string, queue.MaxBatchSize+1)
	for i := range bodies {
		bodies[i] = fmt.Sprintf("job-%d", i)
	}
	err := q.SendJobBatch(context.Background(), bodies)
	assert.ErrorIs(t, err, queue.ErrMaxBatchSizeExceeded)
	assert.Zero(t, fake.batchCalls)
	assert.Empty(t, fake.bodies("jobs"))
}

func TestSendJobBatch_InvalidParameter(t *testing.T) {
	q, fake := newTestQueue(t)

	for _, bodies := range [][]string{nil, {}} {
		err := q.SendJobBatch(context.Background(), bodies)
		assert.ErrorIs(t, err, queue.ErrInvalidParameter)
	}
	assert.Zero(t, fake.batchCalls)
	assert.Empty(t, fake.bodies("jobs"))
}

func TestChangeMessageVisibility(t *testing.T) {
	q, fake := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "job"))
	job, err := q.GetNext(ctx)
	require.NoError(t, err)

	require.NoError(t, q.ChangeMessageVisibility(ctx, job, 120))

	require.Len(t, fake.visibilityInputs, 1)
	input := fake.visibilityInputs[0]
	assert.Equal(t, job.(*Message).ReceiptHandle(), aws.ToString(input.ReceiptHandle))
	assert.Equal(t, fakeURLPrefix+"jobs", aws.ToString(input.QueueUrl))
	assert.Equal(t, int32(120), input.VisibilityTimeout)
}

func TestForeignJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	assert.ErrorIs(t, q.Successful(ctx, otherJob{}), queue.ErrInvalidJob)
	assert.ErrorIs(t, q.Failed(ctx, otherJob{}), queue.ErrInvalidJob)
	assert.ErrorIs(t, q.ChangeMessageVisibility(ctx, otherJob{}, 10), queue.ErrInvalidJob)
}

func TestRenderingForeignJob(t *testing.T) {
	q, _ := newTestQueue(t)

	for _, job := range []queue.Job{otherJob{}, nil} {
		assert.Empty(t, q.GetMessageBody(job))
		assert.Empty(t, q.ToString(job))
	}
}

func TestToString(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "payload"))
	job, err := q.GetNext(ctx)
	require.NoError(t, err)

	first := q.ToString(job)
	assert.Equal(t, first, q.ToString(job))
	assert.Contains(t, first, `"body":"payload"`)
	assert.Contains(t, first, job.ID())
}

func TestGetNext_WithLocker(t *testing.T) {
	l := &stubLocker{acquire: true}
	q, _ := newTestQueue(t, WithLocker(l), WithVisibilityTimeout(60))
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "payload"))

	job, err := q.GetNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, []string{"payload"}, l.keys)
	assert.Equal(t, []time.Duration{time.Minute}, l.ttls)
}

func TestGetNext_LockNotAcquired(t *testing.T) {
	l := &stubLocker{acquire: false}
	q, fake := newTestQueue(t, WithLocker(l))
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "payload"))

	job, err := q.GetNext(ctx)
	assert.Nil(t, job)

	var lockErr *queue.LockAcquisitionError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, "lock-payload", lockErr.LockID)
	assert.Equal(t, "stub locker", lockErr.LockerInfo)

	assert.Equal(t, []string{"payload"}, fake.bodies("jobs-error"))
	assert.Zero(t, fake.inFlightCount())
}

func TestGetNext_LockerTransportError(t *testing.T) {
	lockerErr := errors.New("redis: connection refused")
	q, fake := newTestQueue(t, WithLocker(&stubLocker{err: lockerErr}))
	ctx := context.Background()
	require.NoError(t, q.SendJob(ctx, "payload"))

	job, err := q.GetNext(ctx)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, lockerErr)
	assert.Empty(t, fake.bodies("jobs-error"))
	assert.Equal(t, 1, fake.inFlightCount())
}
