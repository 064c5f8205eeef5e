// Package main provides the entry point for the boundcheck CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/boundcheck/cmd/boundcheck/commands"
	_ "github.com/Sumatoshi-tech/boundcheck/internal/models"
	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
	"github.com/Sumatoshi-tech/boundcheck/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	os.Exit(execute(newRootCommand()))
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "boundcheck",
		Short: "Bounded model checking sessions",
		Long: `boundcheck explores the executions of registered models up to a bound
and reports counterexamples.

Commands:
  run       Run a verification session (fresh, resumed or replayed)
  list      List registered models and entry points
  inspect   Show checkpoint or trace metadata`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewInspectCommand())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// execute runs the command tree and returns the process exit status.
func execute(rootCmd *cobra.Command) int {
	err := rootCmd.Execute()
	if err == nil {
		return outcome.ExitCompleted
	}

	var status *commands.ExitStatus
	if errors.As(err, &status) {
		if status.Err != nil && status.Code != outcome.ExitViolation {
			fmt.Fprintf(os.Stderr, "Error: %v\n", status.Err)
		}

		return status.Code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	return outcome.ExitError
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "boundcheck %s\n", version.String())
		},
	}
}
