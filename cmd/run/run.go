package run

import (
	"fmt"
	"math/rand"
	"time"

	"wpool/internal/config"
	"wpool/internal/output"
	"wpool/internal/worker"

	"github.com/spf13/cobra"
)

// NewRunCmd builds the run command: constructs a pool from the resolved
// configuration, drives it through a synthetic workload, and reports the
// resulting metrics.
func NewRunCmd() *cobra.Command {
	var (
		taskCount   int
		taskSleep   time.Duration
		failPercent int
		watch       bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a worker pool against a synthetic workload",
		Long: `run builds a pool from the resolved thread/queue/timeout
configuration, submits a batch of synthetic tasks, waits for them to
drain, and reports pool metrics. Submission always blocks on a full
queue, whatever --block-on-add is set to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPool(taskCount, taskSleep, failPercent, watch, format)
		},
	}

	cmd.Flags().IntVar(&taskCount, "tasks", 100, "number of synthetic tasks to submit")
	cmd.Flags().DurationVar(&taskSleep, "task-sleep", 10*time.Millisecond, "simulated per-task work duration")
	cmd.Flags().IntVar(&failPercent, "fail-percent", 0, "percentage of tasks that return a non-zero status")
	cmd.Flags().BoolVar(&watch, "watch", false, "show a live queue-drain progress bar")
	cmd.Flags().StringVar(&format, "format", "table", "metrics output format (table or json)")

	return cmd
}

func outputType(format string) output.Type {
	if format == "json" {
		return output.JSON
	}
	return output.Table
}

func runPool(taskCount int, taskSleep time.Duration, failPercent int, watch bool, format string) error {
	attr := config.Attributes()
	attr.BlockOnAdd = worker.Enabled

	pool, err := worker.Create(attr)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}

	var progress *output.QueueProgress
	if watch {
		progress = output.NewQueueProgress(int64(taskCount))
	}

	stopMonitor := make(chan struct{})
	defer close(stopMonitor)
	go restartBlockedWorkers(pool, stopMonitor)

	var submitted int64
	for i := 0; i < taskCount; i++ {
		threshold := failPercent
		task := func(argument interface{}) int {
			time.Sleep(taskSleep)
			if threshold > 0 && rand.Intn(100) < threshold {
				return 1
			}
			return 0
		}
		if err := pool.AddWork(task, i); err != nil {
			return fmt.Errorf("failed to submit task %d: %w", i, err)
		}
		submitted++
		if progress != nil {
			progress.Set(pool.Metrics().CompletedTasks)
		}
	}

	if progress != nil {
		for {
			m := pool.Metrics()
			progress.Set(m.CompletedTasks)
			if m.CompletedTasks+m.FailedTasks >= submitted {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		progress.Finish()
	}

	if err := pool.Wait(); err != nil {
		return fmt.Errorf("failed waiting for pool to drain: %w", err)
	}

	writer := output.NewWriter(output.Config{Type: outputType(format)})
	if err := writer.WriteMetrics(pool.Metrics()); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}

	return pool.Destroy(worker.Graceful)
}

// restartBlockedWorkers watches for workers latched into BLOCKED by a
// failing task (block-on-error enabled) and restarts them so a run with a
// nonzero fail-percent can still drain instead of stalling.
func restartBlockedWorkers(pool *worker.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, info := range pool.ThreadStatusAll() {
				if info.Status == worker.Blocked {
					_ = pool.RestartThread(info.Index)
				}
			}
		}
	}
}
