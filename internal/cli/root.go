// Package cli implements the uthread command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/threading/sched"
)

// options are the flags shared by the commands that run a workload.
type options struct {
	debug     bool
	logLevel  string
	logFormat string

	policy   string
	capacity int
	quantum  int
	timer    time.Duration
	timeout  time.Duration

	addr    string
	report  string
	metrics bool
	quiet   bool
	redis   string
}

// ExitError carries the process exit code of a failed run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps the error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return sched.ExitOK
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return sched.ExitFailure
}

// PrintError writes err to w. Configuration errors are marked so they are
// not mistaken for a failed run.
func PrintError(w io.Writer, err error) {
	if uterrors.IsValidationError(err) {
		fmt.Fprintf(w, "invalid workload: %v\n", err)
		return
	}
	fmt.Fprintln(w, err)
}

// NewRootCmd creates the root cobra command for the uthread CLI.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "uthread",
		Short: "uthread: a user-space thread scheduler",
		Long: `uthread runs workloads of cooperative user threads on a simulated CPU
with round-robin time slices, High/Low priorities and blocking disk reads.

The trace of context switches is written to stdout; logs go to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to the workload setting")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json); defaults to the workload setting")

	root.AddCommand(
		newRunCmd(opts),
		newScenarioCmd(opts),
		newValidateCmd(),
	)
	return root
}

// addRunFlags registers the flags that override workload settings.
func addRunFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringVar(&opts.policy, "policy", "", "Scheduling policy (rr, rrf, rrf-eager, rrfd)")
	f.IntVar(&opts.capacity, "capacity", 0, "Thread table size")
	f.IntVar(&opts.quantum, "quantum", 0, "Timer ticks per time slice")
	f.DurationVar(&opts.timer, "timer", -1, "Timer tick interval (0 disables the timer)")
	f.DurationVar(&opts.timeout, "timeout", 0, "Stop the run after this long (0 waits for the scheduler to halt)")
	f.StringVar(&opts.addr, "addr", "", "Serve /metrics and /api/v1 on this address")
	f.StringVar(&opts.report, "report", "", "Cron schedule of periodic state reports, e.g. \"@every 1s\"")
	f.BoolVar(&opts.metrics, "metrics", false, "Collect Prometheus metrics")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print the switch trace")
	f.StringVar(&opts.redis, "redis", "", "Serve disk blocks from Redis at this address")
}
