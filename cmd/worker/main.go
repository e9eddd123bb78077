package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"job-queue-worker/configs"
	"job-queue-worker/internal/app/backend"
	"job-queue-worker/internal/app/callback"
	"job-queue-worker/internal/app/job"
	"job-queue-worker/internal/app/worker"
	httpServer "job-queue-worker/internal/pkg/http"
	"job-queue-worker/internal/pkg/logger"
	"job-queue-worker/internal/pkg/observability/metrics"
)

func main() {
	cfg, err := configs.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to parse config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Setup(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "unable to set logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer.StartHTTPServer(ctx, cfg.HTTPAddr)

	b, err := backend.New(ctx, cfg)
	if err != nil {
		logger.Fatal("unable to set up %s backend: %v", cfg.QueueType, err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("unable to close backend: %v", err)
		}
	}()

	handler := job.NewHandler(callback.New(cfg.CallbackMaxRetries, cfg.CallbackRequestTimeoutDuration))
	handler.Records = b.Records()
	handler.RecordTTL = cfg.CacheJobTTLDuration

	logger.Info("Starting %d %s workers on queue %s", cfg.QueueWorkerPoolSize, cfg.QueueType, cfg.QueueName)
	err = worker.RunPool(ctx, cfg.QueueWorkerPoolSize, func(ctx context.Context, i int) (*worker.JobWorker, func() error, error) {
		q, release, err := b.NewQueue(ctx)
		if err != nil {
			return nil, nil, err
		}
		return &worker.JobWorker{
			Name:          fmt.Sprintf("%s-%d", cfg.QueueName, i),
			Queue:         q,
			Handler:       handler,
			IdleWait:      cfg.PollingIntervalDuration,
			MaxIterations: cfg.QueueWorkerMaxIterations,
		}, release, nil
	})
	if err != nil {
		logger.Error("worker pool stopped: %v", err)
		return
	}
	logger.Info("All workers stopped")
}
