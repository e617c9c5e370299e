package status

import (
	"fmt"

	"wpool/internal/config"
	"wpool/internal/output"
	"wpool/internal/worker"

	"github.com/spf13/cobra"
)

// NewStatusCmd builds the status command: constructs a pool from the
// resolved configuration, forces every worker goroutine to start, and
// prints a snapshot of the thread-state table.
func NewStatusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a thread-state snapshot for a freshly created pool",
		Long: `status builds a pool from the resolved thread/queue
configuration, forces its worker goroutines to start, and prints their
initial ThreadStatusAll snapshot before tearing the pool back down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "status output format (table or json)")

	return cmd
}

func printStatus(format string) error {
	attr := config.Attributes()
	attr.CreatePolicy = worker.Strict

	pool, err := worker.Create(attr)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}

	outType := output.Table
	if format == "json" {
		outType = output.JSON
	}
	writer := output.NewWriter(output.Config{Type: outType})
	if err := writer.WriteThreadStatus(pool.ThreadStatusAll()); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}

	return pool.Destroy(worker.Forceful)
}
