package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"forgerun/internal/version"
)

// errTestsFailed makes the process exit non-zero without printing another
// error; the tally already says what went wrong.
var errTestsFailed = errors.New("tests failed")

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "forgerun",
		Short:         "Test runner for compiled contract programs",
		Long:          `forgerun runs the tests of a compiled program, fuzzing every test that takes arguments.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newVersionCmd())

	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show timing information")

	flags.String("trace", "", "write runner trace events to file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|session|test|trial)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	flags.Int("trace-ring-size", 4096, "ring buffer capacity in events")
	flags.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0 disables)")

	flags.String("cpu-profile", "", "write a CPU profile of the runner")
	flags.String("mem-profile", "", "write a heap profile of the runner on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace of the runner")
	return rootCmd
}

// main executes the root command. Any error exits
// with status 1.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		}
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
