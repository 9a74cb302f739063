package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vnykmshr/uthread/internal/testutil"
	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/threading/sched"
)

const sample = `
name: sample
scheduler:
  policy: rrf-eager
  capacity: 4
  quantum: 3
  timer_interval: 5ms
disk:
  latency: 2ms
  cache_size: 8
  seed:
    3: hello
metrics:
  enabled: true
report:
  schedule: "@every 1s"
main:
  - op: create
    target: late
threads:
  - name: reader
    priority: high
    steps:
      - op: read
        block: 3
      - op: print
        message: done
  - name: late
    deferred: true
    steps:
      - op: tick
        count: 4
      - op: spin
        duration: 10ms
`

func TestParse(t *testing.T) {
	w, err := Parse([]byte(sample))
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, w.Name, "sample")
	testutil.AssertEqual(t, w.Scheduler.Capacity, 4)
	testutil.AssertEqual(t, w.Scheduler.Quantum, 3)
	testutil.AssertEqual(t, w.Scheduler.TimerInterval, 5*time.Millisecond)
	testutil.AssertEqual(t, w.Disk.Latency, 2*time.Millisecond)
	testutil.AssertEqual(t, w.Disk.Workers, 1)
	testutil.AssertEqual(t, w.Disk.Seed[3], "hello")
	testutil.AssertEqual(t, w.Log.Format, "text")
	testutil.AssertEqual(t, len(w.Threads), 2)
	testutil.AssertEqual(t, w.Threads[0].Steps[0].Block, uint64(3))
	testutil.AssertEqual(t, w.Threads[1].Steps[1].Duration, 10*time.Millisecond)

	p, err := w.Threads[0].ParsePriority()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p, sched.High)

	late, ok := w.Lookup("late")
	if !ok || !late.Deferred {
		t.Errorf("Lookup(late) = %+v, %v", late, ok)
	}
	if _, ok := w.Lookup("missing"); ok {
		t.Error("Lookup(missing) found a thread")
	}
}

func TestSchedConfig(t *testing.T) {
	w, err := Parse([]byte(sample))
	testutil.AssertNoError(t, err)

	cfg, err := w.SchedConfig()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg.Policy, sched.PolicyRRFEager)
	testutil.AssertEqual(t, cfg.Capacity, 4)
	testutil.AssertEqual(t, cfg.Quantum, 3)
	testutil.AssertEqual(t, cfg.TimerInterval, 5*time.Millisecond)

	dev := w.DeviceConfig()
	testutil.AssertEqual(t, dev.Workers, 1)
	testutil.AssertEqual(t, dev.Latency, 2*time.Millisecond)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "bogus: 1\n", "field bogus not found"},
		{"bad policy", "scheduler:\n  policy: lottery\n", "policy"},
		{"zero quantum", "scheduler:\n  quantum: 0\n", "scheduler.quantum"},
		{"negative cache", "disk:\n  cache_size: -1\n", "disk.cache_size"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"unnamed thread", "threads:\n  - priority: low\n", "threads[0].name"},
		{"duplicate thread", "threads:\n  - name: a\n  - name: a\n", "duplicate"},
		{"system priority", "threads:\n  - name: a\n    priority: system\n", "priority"},
		{"unknown op", "threads:\n  - name: a\n    steps:\n      - op: jump\n", "a.steps[0].op"},
		{"tick without count", "threads:\n  - name: a\n    steps:\n      - op: tick\n", "a.steps[0].count"},
		{"create unknown", "main:\n  - op: create\n    target: ghost\n", "main.steps[0].target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			testutil.AssertError(t, err)
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidationErrorsAreConfigurationErrors(t *testing.T) {
	_, err := Parse([]byte("scheduler:\n  capacity: -2\n"))
	testutil.AssertErrorIs(t, err, uterrors.ErrInvalidConfiguration)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workload.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := Load(path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, w.Name, "sample")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	testutil.AssertError(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	testutil.AssertNoError(t, Default().Validate())
}
