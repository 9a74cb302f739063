package trace

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Kind identifies a lifecycle event.
type Kind int

const (
	// Created is recorded when a thread is created.
	Created Kind = iota
	// Finished is recorded when a thread exits.
	Finished
	// Terminated is recorded on the one-way switch away from a finished thread.
	Terminated
	// Ready is recorded when a disk completion makes a waiting thread ready.
	Ready
	// Preempted is recorded on a two-way switch to a High priority thread.
	Preempted
	// Swap is recorded on any other two-way switch.
	Swap
	// Blocked is recorded when a read has to wait for the device.
	Blocked
	// Idle is recorded when the idle task is dispatched.
	Idle
	// Exhausted is recorded when no thread can run.
	Exhausted
)

var kindNames = [...]string{
	Created:    "created",
	Finished:   "finished",
	Terminated: "terminated",
	Ready:      "ready",
	Preempted:  "preempted",
	Swap:       "swap",
	Blocked:    "blocked",
	Idle:       "idle",
	Exhausted:  "exhausted",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Exhaustion reasons.
const (
	ReasonComplete   = "complete"
	ReasonDeadlocked = "deadlocked"
)

// Event is one recorded lifecycle event. From and To are set for switches,
// Thread for events about a single thread.
type Event struct {
	Seq    uint64
	Kind   Kind
	From   int
	To     int
	Thread int
	Reason string
}

func (e Event) String() string {
	switch e.Kind {
	case Created:
		return fmt.Sprintf("*** THREAD %d CREATED", e.Thread)
	case Finished:
		return fmt.Sprintf("*** THREAD %d FINISHED", e.Thread)
	case Terminated:
		return fmt.Sprintf("*** THREAD %d TERMINATED: SET CONTEXT OF %d", e.From, e.To)
	case Ready:
		return fmt.Sprintf("*** THREAD %d READY", e.Thread)
	case Preempted:
		return fmt.Sprintf("*** THREAD %d PREEMPTED: SET CONTEXT OF %d", e.From, e.To)
	case Swap:
		return fmt.Sprintf("*** SWAPCONTEXT FROM %d TO %d", e.From, e.To)
	case Blocked:
		return fmt.Sprintf("*** THREAD %d READ FROM DISK", e.Thread)
	case Idle:
		return fmt.Sprintf("*** THREAD %d IDLE: SET CONTEXT OF %d", e.From, e.To)
	case Exhausted:
		return "*** FINISH"
	default:
		return fmt.Sprintf("*** %s", e.Kind)
	}
}

// Config configures a Log.
type Config struct {
	// Logger receives every event. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// InstanceID is attached to every log entry when set
	InstanceID string

	// Capacity bounds the number of retained events; zero keeps everything
	Capacity int
}

// Log is an ordered, concurrency-safe event recorder.
type Log struct {
	logger   logrus.FieldLogger
	capacity int

	mu      sync.Mutex
	events  []Event
	seq     uint64
	changed chan struct{}
	subs    []subscriber
	nextSub int
}

type subscriber struct {
	id int
	fn func(Event)
}

// New creates a Log writing to the standard logrus logger.
func New() *Log {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a Log with the given configuration.
func NewWithConfig(config Config) *Log {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.InstanceID != "" {
		logger = logger.WithField("instance", config.InstanceID)
	}
	return &Log{
		logger:   logger,
		capacity: config.Capacity,
		changed:  make(chan struct{}),
	}
}

// Record appends e, assigns its sequence number and returns it.
func (l *Log) Record(e Event) Event {
	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	l.events = append(l.events, e)
	if l.capacity > 0 && len(l.events) > l.capacity {
		l.events = append(l.events[:0], l.events[len(l.events)-l.capacity:]...)
	}
	close(l.changed)
	l.changed = make(chan struct{})
	subs := l.subs
	l.mu.Unlock()

	l.write(e)
	for _, s := range subs {
		s.fn(e)
	}
	return e
}

func (l *Log) write(e Event) {
	entry := l.logger.WithField("event", e.Kind.String())
	switch e.Kind {
	case Terminated, Preempted, Swap, Idle:
		entry = entry.WithFields(logrus.Fields{"from": e.From, "to": e.To})
	case Exhausted:
		entry = entry.WithField("reason", e.Reason)
	default:
		entry = entry.WithField("thread", e.Thread)
	}

	if e.Kind == Exhausted && e.Reason != ReasonComplete {
		entry.Warn(e.String())
		return
	}
	entry.Info(e.String())
}

// Events returns a copy of the retained events, oldest first.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Kinds returns the kinds of the retained events, oldest first.
func (l *Log) Kinds() []Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Kind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

// Filter returns the retained events of the given kinds.
func (l *Log) Filter(kinds ...Kind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Len returns the number of events recorded so far, including dropped ones.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// WaitFor blocks until a retained or future event satisfies match and
// returns it.
func (l *Log) WaitFor(ctx context.Context, match func(Event) bool) (Event, error) {
	var seen uint64
	for {
		l.mu.Lock()
		for _, e := range l.events {
			if e.Seq > seen && match(e) {
				l.mu.Unlock()
				return e, nil
			}
		}
		seen = l.seq
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Subscribe calls fn synchronously for every event recorded after the call.
// fn must not block. The returned func removes the subscription.
func (l *Log) Subscribe(fn func(Event)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs = append(l.subs[:len(l.subs):len(l.subs)], subscriber{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		kept := make([]subscriber, 0, len(l.subs))
		for _, s := range l.subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		l.subs = kept
	}
}
