package commands

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/duckstress/internal/cli/config"
)

// ErrNoConfig is returned when a command runs without a loaded config.
var ErrNoConfig = errors.New("configuration not loaded")

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Out    io.Writer
	ErrOut io.Writer
}

// NewCommandContext collects the config and logger stored on the command
// context by the root command.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, ok := config.FromContext(cmd.Context())
	if !ok {
		return nil, ErrNoConfig
	}
	return &CommandContext{
		Cfg:    cfg,
		Logger: config.GetLogger(cmd.Context()),
		Out:    cmd.OutOrStdout(),
		ErrOut: cmd.ErrOrStderr(),
	}, nil
}
