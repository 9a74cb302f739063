package sched

import (
	"fmt"

	"github.com/sirupsen/logrus"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

// Create starts a new thread running entry at priority p and returns its id.
//
// It fails with ErrTableFull, leaving the table untouched, when no control
// block is free. A stack allocation failure halts the System and is returned
// as ErrStackAllocationFailed. Under an eager policy a High thread created
// while a non-High thread runs is dispatched before Create returns.
func (s *System) Create(entry func(), p Priority) (ThreadID, error) {
	if entry == nil {
		return -1, uterrors.NewValidationError("sched", "entry", nil, "cannot be nil")
	}
	if p != Low && p != High {
		return -1, uterrors.NewValidationError("sched", "priority", p, "threads are Low or High")
	}
	s.ensureInit()

	s.mu.Lock()
	var t *tcb
	for i := range s.table {
		if s.table[i].state == Free {
			t = &s.table[i]
			break
		}
	}
	s.mu.Unlock()

	if t == nil {
		return -1, uterrors.NewOperationError("sched", "Create", uterrors.ErrTableFull).
			WithContext(fmt.Sprintf("%d threads", s.config.Capacity))
	}

	stack, err := s.alloc.Allocate(s.config.StackSize)
	if err != nil {
		opErr := uterrors.NewOperationError("sched", "Create", err).
			WithContext(fmt.Sprintf("thread %d", t.id))
		s.fail(opErr)
		return -1, opErr
	}

	restore := s.irq.Mask(interrupt.AllBits)
	s.mu.Lock()
	t.state = Ready
	t.priority = p
	t.ticks = s.config.Quantum
	t.entry = entry
	t.stack = stack
	t.req = nil
	t.ctx = s.cpu.Prepare(s.threadMain(t, entry), stack)
	s.queueFor(t).Enqueue(t)
	preempt := s.config.Policy.EagerDispatch && p == High && s.running.priority == Low
	s.mu.Unlock()
	restore()

	s.trace.Record(trace.Event{Kind: trace.Created, Thread: int(t.id), Reason: p.String()})

	if preempt {
		s.activate(s.schedule())
	}
	return t.id, nil
}

// threadMain wraps entry so that returning from it, or panicking, exits the
// thread.
func (s *System) threadMain(t *tcb, entry func()) func() {
	id := t.id
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(logrus.Fields{
					"thread": id,
					"panic":  r,
				}).Error("thread panicked")
				s.Exit()
			}
		}()

		entry()
		s.Exit()
	}
}

// Exit finishes the calling thread, releases its stack and dispatches the
// next thread. It never returns.
func (s *System) Exit() {
	s.ensureInit()
	s.exitIfHalted()

	s.mu.Lock()
	t := s.running
	t.state = Free
	t.entry = nil
	stack := t.stack
	s.mu.Unlock()

	s.trace.Record(trace.Event{Kind: trace.Finished, Thread: int(t.id)})

	if stack != nil {
		if err := s.alloc.Release(stack); err != nil {
			s.logger.WithError(err).WithField("thread", t.id).Error("stack release failed")
		}
	}

	s.activate(s.schedule())
	panic("sched: exited thread resumed")
}

// CurrentID returns the id of the calling thread. The first call on an
// uninitialized System makes the calling goroutine thread 0.
func (s *System) CurrentID() ThreadID {
	s.ensureInit()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetPriority changes the priority of the calling thread. It takes effect the
// next time the thread is queued.
func (s *System) SetPriority(p Priority) error {
	if p != Low && p != High {
		return uterrors.NewValidationError("sched", "priority", p, "threads are Low or High")
	}
	s.ensureInit()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.id != IdleID {
		s.running.priority = p
	}
	return nil
}

// Priority returns the priority of the calling thread.
func (s *System) Priority() Priority {
	s.ensureInit()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running.priority
}
