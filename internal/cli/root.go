// Package cli implements the swarm command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Exit codes returned by Main.
const (
	ExitOK = 0
	// ExitFailed means the run completed but an assertion did not hold.
	ExitFailed = 1
	// ExitUsage covers bad flags and invalid simulation files.
	ExitUsage = 2
	// ExitInterrupted means the run was cancelled before it finished.
	ExitInterrupted = 130
)

// ExitError carries a process exit code through cobra.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error { return &ExitError{Code: ExitUsage, Err: err} }

// NewRootCmd builds the command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:     "swarm",
		Short:   "An open-model HTTP load generator",
		Version: version,
		Long: `Swarm replays a scripted scenario for every virtual user it injects,
following an open workload: users arrive on a schedule regardless of how
fast earlier users finish. Each user keeps its own session, so values
extracted from one response feed the requests that follow.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newScheduleCmd())
	return root
}

// Execute runs the command line with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(stdout, stderr)
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return ExitOK
	}

	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(stderr, "Error:", exit.Err)
		}
		return exit.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return ExitUsage
}

// Main is the process entry point.
func Main() int {
	return Execute(os.Args[1:], os.Stdout, os.Stderr)
}
