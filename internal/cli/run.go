package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/uthread/internal/config"
	"github.com/vnykmshr/uthread/internal/logging"
	"github.com/vnykmshr/uthread/internal/report"
	"github.com/vnykmshr/uthread/internal/server"
	"github.com/vnykmshr/uthread/internal/workload"
	"github.com/vnykmshr/uthread/pkg/threading/sched"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workload.yaml>",
		Short: "Run a workload file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := config.Load(args[0])
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), w, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func newScenarioCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "scenario <name>",
		Short:     "Run a built-in scenario",
		Long:      "Run a built-in scenario: a (round robin), b (high priority), c (blocking read), d (last exit).",
		Args:      cobra.ExactArgs(1),
		ValidArgs: workload.Scenarios(),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := workload.Scenario(args[0])
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), w, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workload.yaml>",
		Short: "Check a workload file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if _, err := w.SchedConfig(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d threads, policy %s)\n", args[0], len(w.Threads), w.Scheduler.Policy)
			return nil
		},
	}
}

// apply overrides workload settings with the flags that were given.
func (o *options) apply(w *config.Workload) {
	if o.policy != "" {
		w.Scheduler.Policy = o.policy
	}
	if o.capacity > 0 {
		w.Scheduler.Capacity = o.capacity
	}
	if o.quantum > 0 {
		w.Scheduler.Quantum = o.quantum
	}
	if o.timer >= 0 {
		w.Scheduler.TimerInterval = o.timer
	}
	if o.report != "" {
		w.Report.Schedule = o.report
	}
	if o.addr != "" {
		w.Server.Addr = o.addr
	}
	if o.metrics || w.Server.Addr != "" {
		w.Metrics.Enabled = true
	}
	if o.redis != "" {
		w.Disk.RedisAddr = o.redis
	}
	if o.debug {
		o.logLevel = "debug"
	}
	if o.logLevel != "" {
		w.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		w.Log.Format = o.logFormat
	}
}

// execute runs w to completion and maps the outcome to an exit code.
func execute(ctx context.Context, stdout, stderr io.Writer, w config.Workload, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts.apply(&w)
	if err := w.Validate(); err != nil {
		return err
	}

	logger := logging.NewLoggerWithWriter(logging.ParseLevel(w.Log.Level), w.Log.Format, stderr)
	registry := prometheus.NewRegistry()

	env, err := workload.Build(w, workload.Options{Logger: logger, Registerer: registry})
	if err != nil {
		return err
	}
	defer env.Close()
	sys := env.System

	if !opts.quiet {
		var mu sync.Mutex
		sys.Trace().Subscribe(func(e trace.Event) {
			if e.Kind == trace.Created || e.Kind == trace.Finished {
				return
			}
			mu.Lock()
			fmt.Fprintln(stdout, e.String())
			mu.Unlock()
		})
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	stopServer := serve(ctx, w, sys, registry, logger)
	defer stopServer()

	if w.Report.Schedule != "" {
		reporter, err := report.New(sys, w.Report.Schedule, logger)
		if err != nil {
			return err
		}
		reporter.Start()
		defer reporter.Stop()
	}

	runner := workload.NewRunner(sys, w, stdout, logger)
	runErr := sys.Run(ctx, runner.Main)

	code := sched.ExitCode(runErr)
	logger.WithFields(logrus.Fields{
		"workload":  w.Name,
		"exit_code": code,
		"failures":  len(runner.Failures()),
	}).Info("run finished")
	if code == sched.ExitOK {
		return nil
	}
	return &ExitError{Code: code, Err: runErr}
}

// serve starts the debug server when an address is configured. The returned
// func stops it and waits for it to exit.
func serve(ctx context.Context, w config.Workload, sys *sched.System, reg *prometheus.Registry, logger logrus.FieldLogger) func() {
	if w.Server.Addr == "" {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	srv := server.New(sys, logger, server.WithGatherer(reg))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(ctx, w.Server.Addr); err != nil {
			logger.WithError(err).Error("debug server stopped")
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
