// Package report logs a summary of the scheduler state on a cron schedule.
package report

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/uthread/pkg/threading/sched"
)

// DefaultSchedule reports once a second.
const DefaultSchedule = "@every 1s"

// Snapshotter is the scheduler state a Reporter summarizes.
type Snapshotter interface {
	Snapshot() sched.Snapshot
}

// Reporter periodically logs scheduler snapshots.
type Reporter struct {
	source Snapshotter
	logger logrus.FieldLogger
	cron   *cron.Cron
	runs   atomic.Int64

	mu   sync.Mutex
	last sched.Snapshot
}

// New creates a Reporter. The schedule takes a standard five-field cron
// expression with optional seconds, or a descriptor such as "@every 5s".
func New(source Snapshotter, schedule string, logger logrus.FieldLogger) (*Reporter, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r := &Reporter{
		source: source,
		logger: logger.WithField("component", "report"),
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}
	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return nil, fmt.Errorf("invalid report schedule '%s': %w", schedule, err)
	}
	return r, nil
}

// Start begins reporting in the background.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop stops reporting and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

// Report logs one snapshot summary. It is also called by the schedule.
func (r *Reporter) Report() {
	snap := r.source.Snapshot()
	r.runs.Add(1)

	r.mu.Lock()
	r.last = snap
	r.mu.Unlock()

	entry := r.logger.WithFields(logrus.Fields{
		"instance": snap.Instance,
		"policy":   snap.Policy,
		"running":  snap.Running,
		"live":     snap.Live(),
		"high":     len(snap.High),
		"low":      len(snap.Low),
		"waiting":  len(snap.Waiting),
	})
	if snap.Halted {
		entry.WithField("error", snap.Error).Info("scheduler halted")
		return
	}
	entry.Info("scheduler report")
}

// Runs returns the number of reports made.
func (r *Reporter) Runs() int64 {
	return r.runs.Load()
}

// Last returns the most recent snapshot reported.
func (r *Reporter) Last() sched.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
