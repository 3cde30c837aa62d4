// Package cli provides the command-line interface for duckstress.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/duckstress/internal/cli/commands"
	"github.com/leapstack-labs/duckstress/internal/cli/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitUnexpected = 1
	ExitFailure    = 2
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "duckstress",
		Short: "duckstress - concurrency stress harness for DuckDB",
		Long: `duckstress runs many SQL statement streams against DuckDB at the same time
and classifies every statement as Success, ExpectedError or UnexpectedError.

Expected errors are the lock, detach and catalog races that concurrent
ATTACH/DETACH/USE traffic produces on purpose. Anything else, including
crashes, hangs and internal errors, fails the run.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			if used := config.GetConfigFileUsed(); used != "" {
				logger.Debug("using config file", "path", used)
			}

			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./duckstress.yaml)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewGenerateCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewWorkerCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	rootCmd := NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps a command error to the process exit code: 0 for success, 1
// when the run recorded unexpected errors and 2 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, commands.ErrUnexpected):
		return ExitUnexpected
	default:
		return ExitFailure
	}
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for duckstress.

To load completions:

Bash:
  $ source <(duckstress completion bash)

Zsh:
  $ duckstress completion zsh > "${fpath[1]}/_duckstress"

Fish:
  $ duckstress completion fish | source

PowerShell:
  PS> duckstress completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}
