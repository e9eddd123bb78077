package queue

import "context"

// MaxBatchSize is the largest batch the hosted queue accepts in a single call.
const MaxBatchSize = 10

// Job is one unit of work handed out by GetNext.
//
// A Job is only meaningful until one terminal method (Successful, Failed,
// Error or Stopped) has been called with it. Reusing it afterwards is a
// caller error; adapters do not guard against it.
type Job interface {
	ID() string
	Body() string
}

// Queue defines the job lifecycle contract shared by every backend (SQS, beanstalkd, Redis).
type Queue interface {
	// GetNext returns the next pending job, or a nil Job and nil error when
	// the queue has nothing to hand out.
	GetNext(ctx context.Context) (Job, error)
	// Successful removes the job from the source queue for good.
	Successful(ctx context.Context, job Job) error
	// Failed copies the job body to the failed queue, then removes it from the source queue.
	Failed(ctx context.Context, job Job) error
	// Error copies the job body to the error queue, then removes it from the source queue.
	Error(ctx context.Context, job Job) error
	// Stopped removes the job from the source queue without re-routing it.
	Stopped(ctx context.Context, job Job) error
	// Resend is reserved for "put back for immediate retry"; current backends do nothing.
	Resend(ctx context.Context, job Job) error
	// NothingToDo is called by the worker loop when GetNext yielded no job.
	NothingToDo(ctx context.Context)
	// SendJob enqueues one payload on the source queue.
	SendJob(ctx context.Context, body string) error
	// SendJobBatch enqueues several payloads on the source queue.
	SendJobBatch(ctx context.Context, bodies []string) error
	// ChangeMessageVisibility extends the lease of an in-flight job.
	ChangeMessageVisibility(ctx context.Context, job Job, seconds int32) error
	GetMessageBody(job Job) string
	// ToString renders the job for logs. It is not a wire format.
	ToString(job Job) string
}

// Names holds the three queue identities derived from one base name.
type Names struct {
	Source string
	Failed string
	Error  string
}

// NewNames derives the failed and error queue names from the source name.
func NewNames(name string) Names {
	return Names{
		Source: name,
		Failed: name + "-failed",
		Error:  name + "-error",
	}
}
