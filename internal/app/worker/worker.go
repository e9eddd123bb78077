package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/atomic"

	"job-queue-worker/internal/pkg/logger"
	"job-queue-worker/internal/pkg/observability/metrics"
	"job-queue-worker/internal/pkg/queue"
)

var (
	// ErrJobFailed marks a handled failure: the job goes to the failed queue.
	ErrJobFailed = errors.New("job failed")
	// ErrRetry asks for the job to be resent instead of finished.
	ErrRetry = errors.New("job retry requested")
)

// ChangeVisibilityError asks the worker to extend the job lease instead of
// finishing it. The job comes back once the new window elapses.
type ChangeVisibilityError struct {
	Timeout int32
}

func (e *ChangeVisibilityError) Error() string {
	return fmt.Sprintf("change job visibility to %ds", e.Timeout)
}

// Handler processes job bodies.
type Handler interface {
	// Manage processes one job body. A nil error marks the job successful,
	// an error wrapping ErrJobFailed marks it failed and any other error
	// sends it to the error queue.
	Manage(ctx context.Context, body string) error
	// IsStopJob reports a job that asks the worker to stop.
	IsStopJob(body string) bool
}

// JobWorker drives one queue instance, one job at a time.
type JobWorker struct {
	Name          string
	Queue         queue.Queue
	Handler       Handler
	IdleWait      time.Duration // wait after an empty poll or a failed GetNext
	MaxIterations int           // jobs to process before returning, 0 for no limit

	processed atomic.Int64
}

// Processed returns the number of jobs handled so far.
func (w *JobWorker) Processed() int64 {
	return w.processed.Load()
}

// Start runs the loop until ctx is done, a stop job arrives or MaxIterations
// jobs were processed.
func (w *JobWorker) Start(ctx context.Context) error {
	logger.Info("Worker %s started", w.Name)
	defer logger.Info("Worker %s exiting", w.Name)

	for w.MaxIterations <= 0 || w.Processed() < int64(w.MaxIterations) {
		if ctx.Err() != nil {
			return nil
		}

		job, err := w.Queue.GetNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var lockErr *queue.LockAcquisitionError
			if errors.As(err, &lockErr) {
				metrics.LockFailures.Inc()
				logger.Warn("Worker %s skipped a job held elsewhere: %s", w.Name, err)
				continue
			}
			metrics.QueueOperationErrors.WithLabelValues("get_next").Inc()
			logger.Error("Worker %s failed to get next job: %s", w.Name, err)
			w.wait(ctx)
			continue
		}

		if job == nil {
			metrics.IdleTicks.Inc()
			w.Queue.NothingToDo(ctx)
			w.wait(ctx)
			continue
		}

		metrics.JobsReceived.Inc()
		w.processed.Inc()
		if stop := w.processJob(ctx, job); stop {
			return nil
		}
	}
	return nil
}

// processJob handles one job and reports whether the worker must stop.
func (w *JobWorker) processJob(ctx context.Context, job queue.Job) bool {
	ctx = logger.WithTraceID(ctx, job.ID())
	body := w.Queue.GetMessageBody(job)

	if w.Handler.IsStopJob(body) {
		logger.InfoCtx(ctx, "Stop job received by worker %s", w.Name)
		w.finish(ctx, job, metrics.OutcomeStopped, w.Queue.Stopped)
		return true
	}

	logger.InfoCtx(ctx, "Processing job %s", w.Queue.ToString(job))
	start := time.Now()
	err := w.manage(ctx, body)
	metrics.JobProcessingTime.Observe(time.Since(start).Seconds())

	// the handler is done with the job: settle it even if shutdown began meanwhile
	finishCtx := context.WithoutCancel(ctx)

	var visibilityErr *ChangeVisibilityError
	switch {
	case err == nil:
		w.finish(finishCtx, job, metrics.OutcomeSuccessful, w.Queue.Successful)
	case errors.As(err, &visibilityErr):
		logger.InfoCtx(ctx, "Extending job visibility to %ds", visibilityErr.Timeout)
		w.finish(finishCtx, job, metrics.OutcomeVisibility, func(ctx context.Context, job queue.Job) error {
			return w.Queue.ChangeMessageVisibility(ctx, job, visibilityErr.Timeout)
		})
	case errors.Is(err, ErrRetry):
		w.finish(finishCtx, job, metrics.OutcomeResend, w.Queue.Resend)
	case ctx.Err() != nil:
		// shutting down mid-job: drop it rather than reprocess it
		logger.WarnCtx(ctx, "Job interrupted by shutdown: %s", err)
		w.finish(finishCtx, job, metrics.OutcomeStopped, w.Queue.Stopped)
		return true
	case errors.Is(err, ErrJobFailed):
		logger.WarnCtx(ctx, "Job failed: %s", err)
		w.finish(finishCtx, job, metrics.OutcomeFailed, w.Queue.Failed)
	default:
		logger.ErrorCtx(ctx, "Job error: %s", err)
		w.finish(finishCtx, job, metrics.OutcomeError, w.Queue.Error)
	}
	return false
}

// manage runs the handler, turning a panic into an error.
func (w *JobWorker) manage(ctx context.Context, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "Handler panic: %v\nStack: %s", r, string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.Handler.Manage(ctx, body)
}

func (w *JobWorker) finish(ctx context.Context, job queue.Job, outcome string, op func(context.Context, queue.Job) error) {
	if err := op(ctx, job); err != nil {
		metrics.QueueOperationErrors.WithLabelValues(outcome).Inc()
		logger.ErrorCtx(ctx, "Failed to mark job %s: %s", outcome, err)
		return
	}
	metrics.JobsTotal.WithLabelValues(outcome).Inc()
}

func (w *JobWorker) wait(ctx context.Context) {
	if w.IdleWait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(w.IdleWait):
	}
}
