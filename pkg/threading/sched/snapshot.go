package sched

import (
	"errors"
	"fmt"
)

// ThreadInfo describes one thread control block.
type ThreadInfo struct {
	ID       ThreadID `json:"id"`
	State    State    `json:"state"`
	Priority Priority `json:"priority"`
	Ticks    int      `json:"ticks"`
	Running  bool     `json:"running"`
	StackID  uint64   `json:"stack_id,omitempty"`
}

// Snapshot is a consistent view of the scheduler state.
type Snapshot struct {
	Instance string       `json:"instance"`
	Policy   string       `json:"policy"`
	Running  ThreadID     `json:"running"`
	Threads  []ThreadInfo `json:"threads"`
	High     []ThreadID   `json:"high"`
	Low      []ThreadID   `json:"low"`
	Waiting  []ThreadID   `json:"waiting"`
	Halted   bool         `json:"halted"`
	Error    string       `json:"error,omitempty"`
}

// Live returns the number of threads that are not Free, the idle task
// excluded.
func (s Snapshot) Live() int {
	n := 0
	for _, t := range s.Threads {
		if t.ID != IdleID && t.State != Free {
			n++
		}
	}
	return n
}

// Snapshot returns the current scheduler state. It is safe to call from any
// goroutine.
func (s *System) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Instance: s.config.InstanceID,
		Policy:   s.config.Policy.String(),
		Running:  s.current,
		Threads:  make([]ThreadInfo, 0, len(s.table)+1),
		High:     ids(s.high.Items()),
		Low:      ids(s.low.Items()),
		Waiting:  ids(s.waiting.Items()),
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	select {
	case <-s.cpu.Halted():
		snap.Halted = true
	default:
	}

	if !s.initialized {
		return snap
	}
	for i := range s.table {
		snap.Threads = append(snap.Threads, s.info(&s.table[i]))
	}
	snap.Threads = append(snap.Threads, s.info(&s.idle))
	return snap
}

func (s *System) info(t *tcb) ThreadInfo {
	info := ThreadInfo{
		ID:       t.id,
		State:    t.state,
		Priority: t.priority,
		Ticks:    t.ticks,
		Running:  t == s.running,
	}
	if t.stack != nil && t.state != Free {
		info.StackID = t.stack.ID()
	}
	return info
}

func ids(ts []*tcb) []ThreadID {
	out := make([]ThreadID, len(ts))
	for i, t := range ts {
		out[i] = t.id
	}
	return out
}

// CheckInvariants verifies the thread table against the queues. Call it from
// a running thread, where no switch can be in progress.
func (s *System) CheckInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	if s.running == nil {
		return errors.New("sched: no running thread")
	}

	where := make(map[*tcb]string)
	var errs []error
	note := func(name string, items []*tcb) {
		for _, t := range items {
			if prev, ok := where[t]; ok {
				errs = append(errs, fmt.Errorf("thread %d is in both %s and %s", t.id, prev, name))
				continue
			}
			where[t] = name
		}
	}
	note("high", s.high.Items())
	note("low", s.low.Items())
	note("waiting", s.waiting.Items())

	if _, ok := where[&s.idle]; ok {
		errs = append(errs, errors.New("idle task is queued"))
	}
	if q, ok := where[s.running]; ok {
		errs = append(errs, fmt.Errorf("running thread %d is in %s", s.running.id, q))
	}

	for i := range s.table {
		t := &s.table[i]
		q, queued := where[t]
		switch t.state {
		case Free:
			if queued {
				errs = append(errs, fmt.Errorf("free thread %d is in %s", t.id, q))
			}
			if t.stack != nil && !t.stack.Released() {
				errs = append(errs, fmt.Errorf("free thread %d still owns stack %d", t.id, t.stack.ID()))
			}
			if t == s.running {
				errs = append(errs, fmt.Errorf("free thread %d is running", t.id))
			}
		case Ready:
			if t != s.running && q != "high" && q != "low" {
				errs = append(errs, fmt.Errorf("ready thread %d is in no ready queue", t.id))
			}
		case Waiting:
			if t != s.running && q != "waiting" {
				errs = append(errs, fmt.Errorf("waiting thread %d is not in the wait queue", t.id))
			}
		default:
			errs = append(errs, fmt.Errorf("thread %d has state %s", t.id, t.state))
		}
	}

	return errors.Join(errs...)
}
