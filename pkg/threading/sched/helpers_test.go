package sched

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vnykmshr/uthread/internal/testutil"
	"github.com/vnykmshr/uthread/pkg/threading/disk"
	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

func newSystem(t *testing.T, modify func(*Config)) (*System, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.TimerInterval = 0
	cfg.Logger = logger
	cfg.InstanceID = "test"
	if modify != nil {
		modify(&cfg)
	}
	s, err := New(cfg)
	testutil.AssertNoError(t, err)
	return s, hook
}

// newDiskSystem builds a System whose device reads from a MockStore.
func newDiskSystem(t *testing.T, modify func(*Config)) (*System, *testutil.MockStore) {
	t.Helper()
	store := testutil.NewMockStore()
	ctrl := interrupt.NewController()
	dev, err := disk.NewDevice(store, ctrl, disk.Config{Workers: 1})
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	s, _ := newSystem(t, func(c *Config) {
		c.Interrupts = ctrl
		c.Disk = dev
		if modify != nil {
			modify(c)
		}
	})
	return s, store
}

type run struct {
	errc   chan error
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

// start runs main as thread 0 in the background. The System is cancelled and
// awaited when the test ends.
func start(t *testing.T, s *System, main func()) *run {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{errc: make(chan error, 1), cancel: cancel}
	go func() { r.errc <- s.Run(ctx, main) }()
	t.Cleanup(func() {
		r.cancel()
		r.wait(t)
	})
	return r
}

func (r *run) wait(t *testing.T) error {
	t.Helper()
	r.once.Do(func() {
		select {
		case r.err = <-r.errc:
		case <-time.After(testutil.TestTimeout):
			t.Fatal("system did not halt")
		}
	})
	return r.err
}

func waitEvent(t *testing.T, s *System, match func(trace.Event) bool) trace.Event {
	t.Helper()
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	e, err := s.Trace().WaitFor(ctx, match)
	if err != nil {
		t.Fatalf("event not recorded: %v (have %v)", err, switches(s))
	}
	return e
}

func isKind(k trace.Kind) func(trace.Event) bool {
	return func(e trace.Event) bool { return e.Kind == k }
}

func isSwitch(k trace.Kind, from, to ThreadID) func(trace.Event) bool {
	return func(e trace.Event) bool {
		return e.Kind == k && e.From == int(from) && e.To == int(to)
	}
}

// switches renders every context switch as "from>to kind".
func switches(s *System) []string {
	var out []string
	for _, e := range s.Trace().Filter(trace.Terminated, trace.Swap, trace.Preempted, trace.Idle) {
		out = append(out, fmt.Sprintf("%d>%d %s", e.From, e.To, e.Kind))
	}
	return out
}

// tick delivers one timer interrupt to the running thread and waits until it
// has been taken.
func tick(t *testing.T, s *System) {
	t.Helper()
	irq := s.Interrupts()
	want := irq.Stats(interrupt.Timer).Delivered + 1
	irq.Raise(interrupt.Timer)
	testutil.Eventually(t, func() bool {
		return irq.Stats(interrupt.Timer).Delivered >= want
	}, testutil.TestTimeout, time.Millisecond)
}

// spinner returns an entry that loops on safe points and checks the
// scheduler invariants from the running thread.
func spinner(t *testing.T, s *System) func() {
	return func() {
		for {
			if err := s.CheckInvariants(); err != nil {
				t.Errorf("invariants: %v", err)
			}
			s.Checkpoint()
			runtime.Gosched()
		}
	}
}

// selfTick charges one tick to the calling thread.
func selfTick(s *System) {
	s.Interrupts().Raise(interrupt.Timer)
	s.Checkpoint()
}
