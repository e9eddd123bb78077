package sqs

import "job-queue-worker/internal/pkg/locker"

const (
	DefaultWaitTimeSeconds   int32 = 20
	DefaultVisibilityTimeout int32 = 30
)

type Option func(*SqsQueue)

// WithWaitTimeSeconds sets the long-poll wait used by GetNext.
func WithWaitTimeSeconds(seconds int32) Option {
	return func(q *SqsQueue) {
		q.waitTimeSeconds = seconds
	}
}

// WithVisibilityTimeout sets the lease taken on every received message. It is
// also the ttl of the duplicate-suppression lock.
func WithVisibilityTimeout(seconds int32) Option {
	return func(q *SqsQueue) {
		q.visibilityTimeout = seconds
	}
}

// WithLocker enables duplicate suppression on GetNext.
func WithLocker(l locker.Locker) Option {
	return func(q *SqsQueue) {
		q.locker = l
	}
}

// WithSourceQueueURL skips the source queue url lookup.
func WithSourceQueueURL(url string) Option {
	return func(q *SqsQueue) {
		q.sourceQueueURL = url
	}
}

func WithFailedQueueURL(url string) Option {
	return func(q *SqsQueue) {
		q.failedQueueURL = url
	}
}

func WithErrorQueueURL(url string) Option {
	return func(q *SqsQueue) {
		q.errorQueueURL = url
	}
}
