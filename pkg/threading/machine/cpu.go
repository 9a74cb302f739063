package machine

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrEntryReturned halts the CPU when a prepared entry returns instead of
// switching away. There is no context to fall back to.
var ErrEntryReturned = errors.New("machine: context entry returned")

// Context is an opaque saved execution state.
type Context struct {
	cpu      *CPU
	permit   chan struct{}
	stack    *Stack
	entry    func()
	captured bool

	// exitTo is written by the owning goroutine right before it abandons
	// itself and read by its own deferred hand-off.
	exitTo *Context
}

// Stack returns the stack the context was prepared with (nil when captured).
func (ctx *Context) Stack() *Stack {
	return ctx.stack
}

// Captured reports whether the context was obtained with Capture.
func (ctx *Context) Captured() bool {
	return ctx.captured
}

// CPU is the single core every context runs on.
type CPU struct {
	mu      sync.Mutex
	current *Context
	err     error

	halt     chan struct{}
	haltOnce sync.Once

	wg       sync.WaitGroup
	switches atomic.Uint64
}

// NewCPU creates an idle CPU.
func NewCPU() *CPU {
	return &CPU{halt: make(chan struct{})}
}

// Capture returns a context for the calling goroutine and records it as the
// one holding the CPU.
func (c *CPU) Capture() *Context {
	ctx := &Context{
		cpu:      c,
		permit:   make(chan struct{}, 1),
		captured: true,
	}
	c.mu.Lock()
	c.current = ctx
	c.mu.Unlock()
	return ctx
}

// Prepare creates a context that starts executing entry the first time it is
// switched to. The context owns stack for its lifetime.
func (c *CPU) Prepare(entry func(), stack *Stack) *Context {
	ctx := &Context{
		cpu:    c,
		permit: make(chan struct{}, 1),
		stack:  stack,
		entry:  entry,
	}
	c.wg.Add(1)
	go ctx.run()
	return ctx
}

func (ctx *Context) run() {
	c := ctx.cpu
	defer c.wg.Done()
	defer func() {
		if next := ctx.exitTo; next != nil {
			c.grant(next)
		}
	}()

	select {
	case <-ctx.permit:
	case <-c.halt:
		return
	}
	if c.isHalted() {
		return
	}

	ctx.entry()
	c.Halt(ErrEntryReturned)
}

// Go runs fn on a goroutine tracked by Wait. Use it to host a goroutine that
// will Capture itself.
func (c *CPU) Go(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Resume hands the CPU to ctx from outside any context. It is meant for the
// very first dispatch.
func (c *CPU) Resume(ctx *Context) {
	if c.isHalted() {
		return
	}
	c.grant(ctx)
}

// SwitchOneWay transfers the CPU to to and never returns.
func (c *CPU) SwitchOneWay(to *Context) {
	if c.isHalted() {
		runtime.Goexit()
	}

	from := c.Current()
	if from != nil && !from.captured {
		from.exitTo = to
		runtime.Goexit()
	}

	c.grant(to)
	runtime.Goexit()
}

// SwitchTwoWay saves the caller into save and transfers the CPU to to.
// It returns when a later switch resumes save.
func (c *CPU) SwitchTwoWay(save, to *Context) {
	if c.isHalted() {
		runtime.Goexit()
	}
	if save == to {
		return
	}

	c.grant(to)
	c.park(save)
}

func (c *CPU) grant(to *Context) {
	if to.stack != nil && to.stack.Released() {
		panic("machine: switch to a context whose stack was released")
	}

	c.mu.Lock()
	c.current = to
	c.mu.Unlock()
	c.switches.Add(1)

	select {
	case to.permit <- struct{}{}:
	default:
		panic("machine: context already holds the CPU")
	}
}

func (c *CPU) park(ctx *Context) {
	select {
	case <-ctx.permit:
	case <-c.halt:
		runtime.Goexit()
	}
	if c.isHalted() {
		runtime.Goexit()
	}
}

// Current returns the context holding the CPU.
func (c *CPU) Current() *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Switches returns the number of permit hand-offs so far.
func (c *CPU) Switches() uint64 {
	return c.switches.Load()
}

// Halt stops the CPU. Parked contexts exit, and contexts that have not started
// never will. The first error passed wins.
func (c *CPU) Halt(err error) {
	c.haltOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.halt)
	})
}

// Halted returns a channel closed once the CPU is halted.
func (c *CPU) Halted() <-chan struct{} {
	return c.halt
}

func (c *CPU) isHalted() bool {
	select {
	case <-c.halt:
		return true
	default:
		return false
	}
}

// Err returns the error the CPU was halted with.
func (c *CPU) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Wait blocks until every goroutine started by Prepare or Go has exited.
func (c *CPU) Wait() {
	c.wg.Wait()
}
