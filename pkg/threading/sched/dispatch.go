package sched

import (
	"runtime"

	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/queue"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

// queueFor returns the ready queue t belongs in. Callers hold s.mu.
func (s *System) queueFor(t *tcb) *queue.Queue[*tcb] {
	if s.config.Policy.Queues == TwoQueue && t.priority >= High {
		return &s.high
	}
	return &s.low
}

// schedule picks the next thread to run: the oldest High thread, then the
// oldest Low thread, then the running thread if it can go on, then the idle
// task while threads wait on a read the device can still complete. With
// nothing left it halts the System and does not return.
func (s *System) schedule() *tcb {
	s.exitIfHalted()

	restore := s.irq.Mask(interrupt.TimerBit)
	s.mu.Lock()
	next := s.pickLocked()
	waiters := s.waiting.Len()
	s.mu.Unlock()
	restore()

	if next == nil {
		s.exhaust(waiters)
	}
	return next
}

func (s *System) pickLocked() *tcb {
	if t, ok := s.high.Dequeue(); ok {
		return t
	}
	if t, ok := s.low.Dequeue(); ok {
		return t
	}
	if s.running.state == Ready {
		return s.running
	}
	if s.waiting.Len() > 0 && s.dev != nil && s.dev.Pending() {
		return &s.idle
	}
	return nil
}

// exhaust halts the System because no thread can run, then abandons the
// calling goroutine. Threads still waiting mean their reads were dropped by
// a closed device: the System is deadlocked.
func (s *System) exhaust(waiters int) {
	reason := trace.ReasonComplete
	if waiters > 0 {
		reason = trace.ReasonDeadlocked
	}
	s.trace.Record(trace.Event{Kind: trace.Exhausted, Reason: reason})
	s.fail(&ExhaustedError{Reason: reason})
	runtime.Goexit()
}

// switchOut describes what happens to the outgoing thread.
type switchOut interface {
	isSwitchOut()
}

// terminal: the outgoing thread has finished and is never resumed.
type terminal struct{}

// resumable: the outgoing thread is saved. A non-nil requeue is the ready
// queue it goes back to.
type resumable struct {
	requeue *queue.Queue[*tcb]
}

func (terminal) isSwitchOut()  {}
func (resumable) isSwitchOut() {}

// activate hands the CPU to next.
func (s *System) activate(next *tcb) {
	s.exitIfHalted()

	s.mu.Lock()
	prev := s.running
	prev.ticks = s.config.Quantum
	if prev == next {
		s.mu.Unlock()
		return
	}

	next.ticks = s.config.Quantum
	s.running = next
	s.current = next.id
	out := s.prepareSwitchOut(prev)
	s.mu.Unlock()

	s.executeSwitch(prev, next, out)
}

// prepareSwitchOut classifies the outgoing thread. Callers hold s.mu.
func (s *System) prepareSwitchOut(prev *tcb) switchOut {
	switch prev.state {
	case Free:
		return terminal{}
	case Ready:
		return resumable{requeue: s.queueFor(prev)}
	default:
		// Waiting threads sit in the wait queue; the idle task is never queued.
		return resumable{}
	}
}

func (s *System) executeSwitch(prev, next *tcb, out switchOut) {
	switch o := out.(type) {
	case terminal:
		s.trace.Record(trace.Event{Kind: trace.Terminated, From: int(prev.id), To: int(next.id)})
		s.publishQueues()
		s.cpu.SwitchOneWay(next.ctx)

	case resumable:
		if o.requeue != nil {
			restore := s.irq.Mask(interrupt.AllBits)
			s.mu.Lock()
			o.requeue.Enqueue(prev)
			s.mu.Unlock()
			restore()
		}

		kind := trace.Swap
		switch {
		case next.id == IdleID:
			kind = trace.Idle
		case next.priority == High:
			kind = trace.Preempted
		}
		s.trace.Record(trace.Event{Kind: kind, From: int(prev.id), To: int(next.id)})
		s.publishQueues()
		s.cpu.SwitchTwoWay(prev.ctx, next.ctx)
	}
}

func (s *System) publishQueues() {
	if s.observer == nil {
		return
	}
	s.mu.Lock()
	high, low, waiting := s.high.Len(), s.low.Len(), s.waiting.Len()
	s.mu.Unlock()
	s.observer.SetQueues(high, low, waiting)
}
