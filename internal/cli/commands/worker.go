package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/duckstress/internal/cli/config"
	"github.com/leapstack-labs/duckstress/internal/harness"
)

// NewWorkerCommand creates the hidden command a process-isolated run starts
// once per stream. It reads one worker request on stdin and writes one JSON
// outcome per line on stdout.
func NewWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one statement stream for a process-isolated run",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := config.GetLogger(cmd.Context()).With("role", "worker")
			return harness.ServeWorker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}
