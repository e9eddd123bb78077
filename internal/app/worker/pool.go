package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"job-queue-worker/internal/pkg/logger"
)

// Factory builds the i-th worker of a pool together with a function releasing
// its resources. Every worker must own its queue instance.
type Factory func(ctx context.Context, i int) (*JobWorker, func() error, error)

// RunPool runs size workers until they all return. The first worker error
// cancels the others.
func RunPool(ctx context.Context, size int, factory Factory) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < size; i++ {
		w, release, err := factory(ctx, i)
		if err != nil {
			// stop the workers already running
			cancel()
			_ = g.Wait()
			return fmt.Errorf("failed to create worker %d: %w", i, err)
		}
		g.Go(func() (err error) {
			defer func() {
				if release == nil {
					return
				}
				if cerr := release(); cerr != nil {
					logger.Error("Failed to release worker %s: %s", w.Name, cerr)
				}
			}()
			defer recoverWorker(w.Name, &err)
			return w.Start(ctx)
		})
	}
	return g.Wait()
}

func recoverWorker(name string, err *error) {
	if r := recover(); r != nil {
		logger.Error("Worker panic in %s: %v", name, r)
		*err = fmt.Errorf("worker %s panicked: %v", name, r)
	}
}
