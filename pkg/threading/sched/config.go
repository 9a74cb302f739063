package sched

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/common/validation"
	"github.com/vnykmshr/uthread/pkg/threading/disk"
	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/machine"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

// Defaults.
const (
	DefaultCapacity      = 10
	DefaultQuantum       = 2
	DefaultTimerInterval = 10 * time.Millisecond
)

// Config holds configuration for a System.
type Config struct {
	// Capacity is the number of thread control blocks, thread 0 included
	Capacity int

	// Quantum is the number of timer ticks a Low thread runs before it is
	// preempted
	Quantum int

	// StackSize is the size of every thread stack
	StackSize int

	// Policy selects the scheduling features
	Policy Policy

	// Allocator provides thread stacks. Defaults to an unbounded heap allocator.
	Allocator machine.StackAllocator

	// Interrupts is the controller handlers are installed on. Created when nil.
	Interrupts *interrupt.Controller

	// Disk serves blocking reads. With Policy.DiskWait and no device, a
	// device over an in-memory store is created and owned by the System.
	Disk *disk.Device

	// Cache is consulted before a read goes to the device. Nil disables it.
	Cache *disk.PageCache

	// TimerInterval is the period of the preemption timer. Zero disables the
	// timer; ticks can still be raised on Interrupts.
	TimerInterval time.Duration

	// Logger receives scheduler diagnostics. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// Trace records lifecycle events. Created when nil.
	Trace *trace.Log

	// InstanceID tags log entries. Defaults to a random UUID.
	InstanceID string

	// OnHalt is called once when the System halts on a fatal error
	OnHalt func(error)
}

// DefaultConfig returns the configuration of the full feature set with the
// classic table size and quantum.
func DefaultConfig() Config {
	return Config{
		Capacity:      DefaultCapacity,
		Quantum:       DefaultQuantum,
		StackSize:     machine.DefaultStackSize,
		Policy:        PolicyRRFD,
		TimerInterval: DefaultTimerInterval,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("sched", "Capacity", c.Capacity); err != nil {
		return err
	}
	if err := validation.ValidatePositive("sched", "Quantum", c.Quantum); err != nil {
		return err
	}
	if err := validation.ValidatePositive("sched", "StackSize", c.StackSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("sched", "TimerInterval", c.TimerInterval); err != nil {
		return err
	}
	if c.Policy.Queues != SingleQueue && c.Policy.Queues != TwoQueue {
		return uterrors.NewValidationError("sched", "Policy.Queues", c.Policy.Queues, "unknown queue mode")
	}
	if c.Policy.EagerDispatch && c.Policy.Queues != TwoQueue {
		return uterrors.NewValidationError("sched", "Policy.EagerDispatch", true, "requires two queues").
			WithHint("set Policy.Queues to TwoQueue")
	}
	if c.Disk != nil && !c.Policy.DiskWait {
		return uterrors.NewValidationError("sched", "Disk", "device", "set without Policy.DiskWait").
			WithHint("enable Policy.DiskWait or drop the device")
	}
	return nil
}

// withDefaults fills the zero fields that have a natural default.
func (c Config) withDefaults() Config {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Quantum == 0 {
		c.Quantum = DefaultQuantum
	}
	if c.StackSize == 0 {
		c.StackSize = machine.DefaultStackSize
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}
