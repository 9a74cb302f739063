package sched

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/uthread/pkg/metrics"
	"github.com/vnykmshr/uthread/pkg/threading/disk"
	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/machine"
	"github.com/vnykmshr/uthread/pkg/threading/queue"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

// System is one scheduler instance: a thread table, its queues and the
// simulated CPU the threads share.
type System struct {
	config    Config
	cpu       *machine.CPU
	irq       *interrupt.Controller
	dev       *disk.Device
	ownDevice bool
	cache     *disk.PageCache
	alloc     machine.StackAllocator
	trace     *trace.Log
	logger    logrus.FieldLogger
	observer  *metrics.Observer

	// mu guards the fields below. It is never held across a context switch
	// or while recording a trace event.
	mu          sync.Mutex
	initialized bool
	table       []tcb
	idle        tcb
	running     *tcb
	current     ThreadID
	high        queue.Queue[*tcb]
	low         queue.Queue[*tcb]
	waiting     queue.Queue[*tcb]
	err         error
	closeOnce   sync.Once
}

// New creates a System. Nothing runs until Run is called or a thread
// operation initializes the System from the calling goroutine.
func New(config Config) (*System, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &System{
		config: config,
		cpu:    machine.NewCPU(),
		irq:    config.Interrupts,
		dev:    config.Disk,
		cache:  config.Cache,
		alloc:  config.Allocator,
		trace:  config.Trace,
		logger: config.Logger.WithField("instance", config.InstanceID),
	}

	if s.irq == nil {
		s.irq = interrupt.NewController()
	}
	if s.alloc == nil {
		s.alloc = machine.NewHeapAllocator(0)
	}
	if s.trace == nil {
		s.trace = trace.NewWithConfig(trace.Config{
			Logger:     config.Logger,
			InstanceID: config.InstanceID,
		})
	}
	if config.Policy.DiskWait && s.dev == nil {
		dev, err := disk.NewDevice(disk.NewMemoryStore(disk.DefaultBlockSize), s.irq, disk.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("sched: create disk device: %w", err)
		}
		s.dev = dev
		s.ownDevice = true
	}

	s.table = make([]tcb, config.Capacity)
	for i := range s.table {
		s.table[i].id = ThreadID(i)
	}
	return s, nil
}

// Run boots the System with main as thread 0 and blocks until the System
// halts or ctx is done. It returns the error the System halted with: an
// *ExhaustedError once no thread can run, the stack allocation failure, or
// ctx.Err() when cancelled.
func (s *System) Run(ctx context.Context, main func()) error {
	if main == nil {
		return fmt.Errorf("sched: main cannot be nil")
	}

	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return fmt.Errorf("sched: system already running")
	}
	err := s.initLocked(main)
	boot := s.running.ctx
	s.mu.Unlock()

	if err != nil {
		s.fail(err)
	} else {
		s.start()
		s.cpu.Resume(boot)
	}
	return s.Wait(ctx)
}

// Wait blocks until the System halts or ctx is done, then waits for every
// thread goroutine to exit. Threads exit at their next safe point.
func (s *System) Wait(ctx context.Context) error {
	select {
	case <-s.cpu.Halted():
	case <-ctx.Done():
		s.Shutdown(ctx.Err())
	}

	s.cpu.Wait()
	s.close()
	return s.Err()
}

// Shutdown halts the System with err, which may be nil.
func (s *System) Shutdown(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	s.irq.Stop()
	s.cpu.Halt(err)
}

// Done returns a channel closed once the System is halted.
func (s *System) Done() <-chan struct{} {
	return s.cpu.Halted()
}

// Err returns the error the System halted with.
func (s *System) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Trace returns the lifecycle event log.
func (s *System) Trace() *trace.Log {
	return s.trace
}

// Interrupts returns the interrupt controller.
func (s *System) Interrupts() *interrupt.Controller {
	return s.irq
}

// Config returns the configuration the System was built with.
func (s *System) Config() Config {
	return s.config
}

func (s *System) close() {
	s.closeOnce.Do(func() {
		s.irq.Stop()
		if s.ownDevice {
			_ = s.dev.Close()
		}
	})
}

// fail halts the System on a fatal error.
func (s *System) fail(err error) {
	s.mu.Lock()
	first := s.err == nil
	if first {
		s.err = err
	}
	s.mu.Unlock()

	if first {
		if ExitCode(err) != ExitOK {
			s.logger.WithError(err).Error("scheduler halted")
		}
	}
	s.irq.Stop()
	s.cpu.Halt(err)

	if first && s.config.OnHalt != nil {
		s.config.OnHalt(err)
	}
}

// ensureInit initializes the System on first use, capturing the calling
// goroutine as thread 0.
func (s *System) ensureInit() {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	err := s.initLocked(nil)
	s.mu.Unlock()

	if err != nil {
		s.fail(err)
		runtime.Goexit()
	}
	s.start()
}

// initLocked sets up thread 0, the idle task and the queues. With a nil
// boot entry the calling goroutine becomes thread 0.
func (s *System) initLocked(boot func()) error {
	s.initialized = true
	q := s.config.Quantum

	idleStack, err := s.alloc.Allocate(s.config.StackSize)
	if err != nil {
		return fmt.Errorf("sched: idle task stack: %w", err)
	}
	s.idle = tcb{
		id:       IdleID,
		state:    Idle,
		priority: Reserved,
		ticks:    q,
		entry:    s.idleLoop,
		stack:    idleStack,
	}
	s.idle.ctx = s.cpu.Prepare(s.idleLoop, idleStack)

	t0 := &s.table[0]
	t0.state = Ready
	t0.priority = Low
	t0.ticks = q
	if boot == nil {
		t0.ctx = s.cpu.Capture()
	} else {
		stack, err := s.alloc.Allocate(s.config.StackSize)
		if err != nil {
			return fmt.Errorf("sched: thread 0 stack: %w", err)
		}
		t0.entry = boot
		t0.stack = stack
		t0.ctx = s.cpu.Prepare(s.threadMain(t0, boot), stack)
	}

	s.running = t0
	s.current = 0
	return nil
}

// start arms the interrupt sources.
func (s *System) start() {
	s.irq.Handle(interrupt.Timer, s.onTimer)
	s.irq.Handle(interrupt.Disk, s.onDisk)

	if s.observer != nil {
		s.observer.SetLive(1)
	}

	if s.config.TimerInterval > 0 {
		if err := s.irq.StartTimer(s.config.TimerInterval); err != nil {
			s.logger.WithError(err).Warn("timer not started")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"policy":   s.config.Policy.String(),
		"capacity": s.config.Capacity,
		"quantum":  s.config.Quantum,
	}).Debug("scheduler initialized")
}
