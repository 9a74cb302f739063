package sched

import (
	"fmt"
	"strings"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/threading/disk"
	"github.com/vnykmshr/uthread/pkg/threading/machine"
)

// ThreadID identifies a thread control block. Valid ids are 0..Capacity-1.
type ThreadID int

// IdleID is the id of the idle task.
const IdleID ThreadID = -1

// State is the lifecycle state of a thread control block.
type State int

const (
	// Free slots hold no thread and may be reused by Create.
	Free State = iota
	// Ready threads are running or queued to run.
	Ready
	// Waiting threads are blocked on a disk read.
	Waiting
	// Idle is the state of the idle task only.
	Idle
)

var stateNames = [...]string{"free", "ready", "waiting", "idle"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Priority orders dispatching. Reserved belongs to the idle task.
type Priority int

const (
	// Low priority threads share the CPU in round-robin time slices.
	Low Priority = iota
	// High priority threads run first-come first-served, without time slices.
	High
	// Reserved is the priority of the idle task.
	Reserved
)

var priorityNames = [...]string{"low", "high", "system"}

func (p Priority) String() string {
	if p >= 0 && int(p) < len(priorityNames) {
		return priorityNames[p]
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// MarshalText renders the priority name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses "low" or "high".
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePriority parses a thread priority. Reserved cannot be requested.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low":
		return Low, nil
	case "high":
		return High, nil
	default:
		return Low, uterrors.NewValidationError("sched", "priority", s, "unknown priority").
			WithHint("use one of: low high")
	}
}

// QueueMode selects how ready threads are queued.
type QueueMode int

const (
	// SingleQueue keeps every ready thread in one round-robin queue.
	SingleQueue QueueMode = iota
	// TwoQueue separates High and Low priority ready threads.
	TwoQueue
)

// Policy is the combination of scheduler features in use.
type Policy struct {
	// Queues selects one shared ready queue or separate High/Low queues
	Queues QueueMode

	// EagerDispatch dispatches a High thread as soon as one becomes ready
	// while a non-High thread runs
	EagerDispatch bool

	// DiskWait enables blocking reads and the idle task
	DiskWait bool
}

// Predefined policies.
var (
	// PolicyRR time-slices every thread in one queue.
	PolicyRR = Policy{Queues: SingleQueue}
	// PolicyRRF runs High threads FIFO ahead of round-robin Low threads.
	PolicyRRF = Policy{Queues: TwoQueue}
	// PolicyRRFEager is PolicyRRF with immediate dispatch of new High threads.
	PolicyRRFEager = Policy{Queues: TwoQueue, EagerDispatch: true}
	// PolicyRRFD adds blocking disk reads to PolicyRRFEager.
	PolicyRRFD = Policy{Queues: TwoQueue, EagerDispatch: true, DiskWait: true}
)

var policyNames = map[string]Policy{
	"rr":        PolicyRR,
	"rrf":       PolicyRRF,
	"rrf-eager": PolicyRRFEager,
	"rrfd":      PolicyRRFD,
}

// ParsePolicy returns the predefined policy called name.
func ParsePolicy(name string) (Policy, error) {
	p, ok := policyNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Policy{}, uterrors.NewValidationError("sched", "policy", name, "unknown policy").
			WithHint("use one of: rr rrf rrf-eager rrfd")
	}
	return p, nil
}

func (p Policy) String() string {
	for name, known := range policyNames {
		if known == p {
			return name
		}
	}
	mode := "single"
	if p.Queues == TwoQueue {
		mode = "two"
	}
	return fmt.Sprintf("custom(queues=%s,eager=%t,disk=%t)", mode, p.EagerDispatch, p.DiskWait)
}

// tcb is a thread control block.
type tcb struct {
	id       ThreadID
	state    State
	priority Priority
	ticks    int
	entry    func()
	ctx      *machine.Context
	stack    *machine.Stack

	// req is the outstanding disk read of a Waiting thread.
	req *disk.Request
}
