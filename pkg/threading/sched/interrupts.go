package sched

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/threading/disk"
	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

// onTimer charges a tick to the running thread and preempts it once its
// quantum is used up. High threads in two-queue mode and the idle task are
// never time-sliced.
func (s *System) onTimer(interrupt.Kind) {
	s.mu.Lock()
	t := s.running
	exempt := t.priority == Reserved ||
		(t.priority == High && s.config.Policy.Queues == TwoQueue) ||
		t.state != Ready
	if exempt {
		s.mu.Unlock()
		return
	}
	t.ticks--
	expired := t.ticks <= 0
	s.mu.Unlock()

	if expired {
		s.activate(s.schedule())
	}
}

// onDisk readies the thread whose read completed.
func (s *System) onDisk(interrupt.Kind) {
	if s.dev == nil {
		return
	}
	req, ok := s.dev.Complete()
	if !ok {
		return
	}
	if s.cache != nil && req.Err == nil {
		s.cache.Insert(req.Block, req.Data)
	}

	restore := s.irq.Mask(interrupt.AllBits)
	s.mu.Lock()
	var t *tcb
	s.waiting.Remove(func(w *tcb) bool {
		if w.req == req {
			t = w
			return true
		}
		return false
	})
	if t == nil {
		s.mu.Unlock()
		restore()
		s.logger.WithField("block", req.Block).Warn("disk completion without a waiting thread")
		return
	}
	t.state = Ready
	s.queueFor(t).Enqueue(t)
	preempt := s.config.Policy.EagerDispatch && t.priority == High && s.running.priority != High
	s.mu.Unlock()
	restore()

	s.logger.WithFields(logrus.Fields{
		"thread":   t.id,
		"block":    req.Block,
		"duration": req.Duration(),
	}).Debug("disk read completed")

	s.trace.Record(trace.Event{Kind: trace.Ready, Thread: int(t.id)})

	if preempt {
		s.activate(s.schedule())
	}
}

// idleLoop runs while every live thread waits on the disk. It sleeps until an
// interrupt arrives and dispatches as soon as a thread is ready, or halts
// once the device can no longer complete the reads being waited on.
func (s *System) idleLoop() {
	for {
		if !s.irq.Wait(s.cpu.Halted()) {
			runtime.Goexit()
		}

		s.mu.Lock()
		ready := !s.high.Empty() || !s.low.Empty()
		s.mu.Unlock()

		if ready || !s.dev.Pending() {
			s.activate(s.schedule())
		}
	}
}

// Checkpoint is a safe point: every pending, unmasked interrupt is delivered
// to the calling thread, which may be switched out and resumed before
// Checkpoint returns. Once the System has halted Checkpoint does not return.
func (s *System) Checkpoint() {
	s.ensureInit()
	s.exitIfHalted()
	for s.irq.Deliver() {
		s.exitIfHalted()
	}
}

// Halt is a safe point that first waits for an interrupt to arrive.
func (s *System) Halt() {
	s.ensureInit()
	if !s.irq.Wait(s.cpu.Halted()) {
		runtime.Goexit()
	}
	s.exitIfHalted()
}

func (s *System) exitIfHalted() {
	select {
	case <-s.cpu.Halted():
		runtime.Goexit()
	default:
	}
}

// Read returns the contents of block. A cached block is returned at once;
// otherwise the calling thread waits until the device completes the read
// while other threads run.
func (s *System) Read(block uint64) ([]byte, error) {
	s.ensureInit()
	if !s.config.Policy.DiskWait {
		return nil, fmt.Errorf("sched: read block %d: %w", block, uterrors.ErrDiskUnavailable)
	}

	if s.cache != nil {
		if data, ok := s.cache.Lookup(block); ok {
			if s.observer != nil {
				s.observer.CacheHit()
			}
			return data, nil
		}
	}

	s.mu.Lock()
	t := s.running
	req := &disk.Request{Owner: int(t.id), Block: block}
	s.mu.Unlock()

	if err := s.dev.Submit(req); err != nil {
		return nil, fmt.Errorf("sched: read block %d: %w", block, err)
	}

	restore := s.irq.Mask(interrupt.AllBits)
	s.mu.Lock()
	t.state = Waiting
	t.req = req
	s.waiting.Enqueue(t)
	s.mu.Unlock()
	restore()

	s.trace.Record(trace.Event{Kind: trace.Blocked, Thread: int(t.id)})

	s.activate(s.schedule())

	s.mu.Lock()
	t.req = nil
	s.mu.Unlock()
	return req.Data, req.Err
}
