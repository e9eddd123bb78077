package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values of JobsTotal.
const (
	OutcomeSuccessful = "successful"
	OutcomeFailed     = "failed"
	OutcomeError      = "error"
	OutcomeStopped    = "stopped"
	OutcomeResend     = "resend"
	OutcomeVisibility = "visibility_changed"
)

var (
	JobsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "job_queue_jobs_received_total",
			Help: "Total jobs handed out by the queue",
		})

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_queue_jobs_total",
			Help: "Total jobs finished, by outcome",
		}, []string{"outcome"})

	QueueOperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_queue_operation_errors_total",
			Help: "Total queue backend calls that returned an error",
		}, []string{"operation"})

	LockFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "job_queue_lock_failures_total",
			Help: "Total jobs moved to the error queue because their lock was held elsewhere",
		})

	IdleTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "job_queue_idle_ticks_total",
			Help: "Total polls that returned no job",
		})

	JobProcessingTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_queue_job_processing_seconds",
			Help:    "Histogram of job handler duration",
			Buckets: prometheus.DefBuckets,
		})
)

func Setup() {
	prometheus.MustRegister(JobsReceived)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(QueueOperationErrors)
	prometheus.MustRegister(LockFailures)
	prometheus.MustRegister(IdleTicks)
	prometheus.MustRegister(JobProcessingTime)
}
