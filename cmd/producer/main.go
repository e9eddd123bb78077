package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"job-queue-worker/configs"
	"job-queue-worker/internal/app/backend"
	"job-queue-worker/internal/pkg/logger"
	"job-queue-worker/internal/pkg/queue"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "producer",
		Short:        "Enqueue jobs on the configured queue backend",
		SilenceUsage: true,
	}
	root.AddCommand(newSendCmd())
	return root
}

func newSendCmd() *cobra.Command {
	var (
		batchSize int
		single    bool
	)

	cmd := &cobra.Command{
		Use:   "send [body...]",
		Short: "Send job bodies, read one per line from stdin when none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize < 1 {
				return fmt.Errorf("--batch-size must be positive, got %d", batchSize)
			}

			bodies := args
			if len(bodies) == 0 {
				var err error
				if bodies, err = readLines(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if len(bodies) == 0 {
				return fmt.Errorf("no job bodies given")
			}

			cfg, err := configs.Parse()
			if err != nil {
				return err
			}
			if err := logger.Setup(cfg.LogLevel); err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, err := backend.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			q, release, err := b.NewQueue(ctx)
			if err != nil {
				return err
			}
			defer release()

			sent, err := send(ctx, q, bodies, batchSize, single)
			logger.Info("Sent %d/%d jobs to %s", sent, len(bodies), cfg.QueueName)
			return err
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", queue.MaxBatchSize, "jobs per SendJobBatch call")
	cmd.Flags().BoolVar(&single, "single", false, "send jobs one by one with SendJob")
	return cmd
}

// send enqueues bodies in order and returns how many were accepted.
func send(ctx context.Context, q queue.Queue, bodies []string, batchSize int, single bool) (int, error) {
	sent := 0
	if single {
		for _, body := range bodies {
			if err := q.SendJob(ctx, body); err != nil {
				return sent, fmt.Errorf("unable to send job %d: %w", sent, err)
			}
			sent++
		}
		return sent, nil
	}

	for start := 0; start < len(bodies); start += batchSize {
		end := min(start+batchSize, len(bodies))
		if err := q.SendJobBatch(ctx, bodies[start:end]); err != nil {
			return sent, fmt.Errorf("unable to send jobs %d-%d: %w", start, end-1, err)
		}
		sent += end - start
	}
	return sent, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
