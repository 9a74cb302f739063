// Package workload runs the thread scripts of a workload file on a
// scheduler.
package workload

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/uthread/internal/config"
	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/sched"
)

// Runner executes a workload. Main is the entry of thread 0; every other
// thread runs the steps of its definition.
type Runner struct {
	sys    *sched.System
	wl     config.Workload
	out    io.Writer
	logger logrus.FieldLogger

	mu       sync.Mutex
	ids      map[string]sched.ThreadID
	failures []error
}

// NewRunner creates a runner printing to out.
func NewRunner(sys *sched.System, wl config.Workload, out io.Writer, logger logrus.FieldLogger) *Runner {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		sys:    sys,
		wl:     wl,
		out:    out,
		logger: logger.WithField("workload", wl.Name),
		ids:    make(map[string]sched.ThreadID),
	}
}

// Main creates the threads that are not deferred, in file order, then runs
// the main steps.
func (r *Runner) Main() {
	for _, t := range r.wl.Threads {
		if !t.Deferred {
			r.create(t.Name)
		}
	}
	r.run("main", r.wl.Main)
}

// ID returns the id of the most recent thread created from the definition
// named name.
func (r *Runner) ID(name string) (sched.ThreadID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[name]
	return id, ok
}

// Failures returns the step errors seen so far.
func (r *Runner) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failures...)
}

func (r *Runner) create(name string) {
	def, ok := r.wl.Lookup(name)
	if !ok {
		r.failed(fmt.Errorf("create %s: unknown thread", name))
		return
	}
	p, err := def.ParsePriority()
	if err != nil {
		r.failed(err)
		return
	}

	id, err := r.sys.Create(func() { r.run(def.Name, def.Steps) }, p)
	if err != nil {
		r.failed(fmt.Errorf("create %s: %w", name, err))
		return
	}

	r.mu.Lock()
	r.ids[name] = id
	r.mu.Unlock()
	r.logger.WithFields(logrus.Fields{"thread": id, "name": name}).Debug("thread created")
}

func (r *Runner) run(name string, steps []config.Step) {
	for _, step := range steps {
		r.step(name, step)
	}
}

func (r *Runner) step(name string, step config.Step) {
	switch step.Op {
	case config.OpTick:
		for i := 0; i < step.Count; i++ {
			r.sys.Interrupts().Raise(interrupt.Timer)
			r.sys.Checkpoint()
		}
	case config.OpSpin:
		r.spin(step.Duration)
	case config.OpRead:
		data, err := r.sys.Read(step.Block)
		if err != nil {
			r.failed(fmt.Errorf("%s: read block %d: %w", name, step.Block, err))
			return
		}
		r.logger.WithFields(logrus.Fields{
			"thread": r.sys.CurrentID(),
			"block":  step.Block,
			"bytes":  len(data),
		}).Debug("read complete")
	case config.OpCreate:
		r.create(step.Target)
	case config.OpPriority:
		p, err := sched.ParsePriority(step.Priority)
		if err == nil {
			err = r.sys.SetPriority(p)
		}
		if err != nil {
			r.failed(fmt.Errorf("%s: %w", name, err))
		}
	case config.OpPrint:
		r.print(step.Message)
	case config.OpExit:
		r.sys.Exit()
	}
}

// spin loops on safe points for d, or forever when d is zero.
func (r *Runner) spin(d time.Duration) {
	deadline := time.Now().Add(d)
	for d == 0 || time.Now().Before(deadline) {
		r.sys.Checkpoint()
		runtime.Gosched()
	}
}

func (r *Runner) print(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "[thread %d] %s\n", r.sys.CurrentID(), msg)
}

func (r *Runner) failed(err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
	entry := r.logger.WithError(err).WithField("recoverable", uterrors.IsRecoverable(err))
	if uterrors.IsFatal(err) {
		entry.Error("workload step failed")
		return
	}
	entry.Warn("workload step failed")
}
