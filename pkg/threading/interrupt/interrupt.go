package interrupt

import (
	"fmt"
	"sync"
	"time"
)

// Kind identifies an interrupt source.
type Kind int

const (
	// Timer is the periodic preemption tick.
	Timer Kind = iota
	// Disk signals that a read request has completed.
	Disk

	numKinds
)

func (k Kind) String() string {
	switch k {
	case Timer:
		return "timer"
	case Disk:
		return "disk"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Mask is a set of interrupt kinds.
type Mask uint8

// Mask bits.
const (
	TimerBit Mask = 1 << Timer
	DiskBit  Mask = 1 << Disk
	AllBits       = TimerBit | DiskBit
)

// Bit returns the mask bit of k.
func (k Kind) Bit() Mask {
	return 1 << k
}

// Has reports whether k is in m.
func (m Mask) Has(k Kind) bool {
	return m&k.Bit() != 0
}

// Handler runs on the interrupted thread's goroutine.
type Handler func(Kind)

// Stats counts events per kind.
type Stats struct {
	Raised    uint64
	Delivered uint64
	Coalesced uint64
}

// Controller holds handlers, the mask and the pending event queue.
type Controller struct {
	mu       sync.Mutex
	handlers [numKinds]Handler
	masked   Mask
	pending  []Kind
	stats    [numKinds]Stats
	signal   chan struct{}

	timerMu sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	stopped chan struct{}
}

// NewController creates a controller with no handlers and nothing masked.
func NewController() *Controller {
	return &Controller{signal: make(chan struct{}, 1)}
}

// Handle installs h for k, replacing any previous handler.
func (c *Controller) Handle(k Kind, h Handler) {
	c.mu.Lock()
	c.handlers[k] = h
	c.mu.Unlock()
}

// Raise records an event of kind k. It never blocks and may be called from
// any goroutine.
func (c *Controller) Raise(k Kind) {
	c.mu.Lock()
	c.stats[k].Raised++
	if k == Timer && c.isPending(k) {
		c.stats[k].Coalesced++
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, k)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) isPending(k Kind) bool {
	for _, p := range c.pending {
		if p == k {
			return true
		}
	}
	return false
}

func (c *Controller) notify() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// Mask adds kinds to the mask and returns a func restoring the previous mask.
func (c *Controller) Mask(kinds Mask) (restore func()) {
	c.mu.Lock()
	prev := c.masked
	c.masked |= kinds
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.masked = prev
		c.mu.Unlock()
		c.notify()
	}
}

// MaskTimer masks the timer interrupt.
func (c *Controller) MaskTimer() { c.setMask(TimerBit, true) }

// UnmaskTimer unmasks the timer interrupt.
func (c *Controller) UnmaskTimer() { c.setMask(TimerBit, false) }

// MaskDisk masks the disk interrupt.
func (c *Controller) MaskDisk() { c.setMask(DiskBit, true) }

// UnmaskDisk unmasks the disk interrupt.
func (c *Controller) UnmaskDisk() { c.setMask(DiskBit, false) }

func (c *Controller) setMask(bits Mask, on bool) {
	c.mu.Lock()
	if on {
		c.masked |= bits
	} else {
		c.masked &^= bits
	}
	c.mu.Unlock()
	if !on {
		c.notify()
	}
}

// Masked returns the current mask.
func (c *Controller) Masked() Mask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masked
}

// Pending returns the queued events, oldest first.
func (c *Controller) Pending() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Kind, len(c.pending))
	copy(out, c.pending)
	return out
}

// Stats returns the counters for k.
func (c *Controller) Stats(k Kind) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats[k]
}

// Deliver runs the handler of the oldest unmasked pending event and reports
// whether one was taken. Events without a handler are dropped.
func (c *Controller) Deliver() bool {
	c.mu.Lock()
	idx := -1
	for i, k := range c.pending {
		if !c.masked.Has(k) {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false
	}

	k := c.pending[idx]
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	c.stats[k].Delivered++
	h := c.handlers[k]
	c.mu.Unlock()

	if h != nil {
		h(k)
	}
	return true
}

// Wait blocks until an event has been delivered, or returns false once halt
// is closed.
func (c *Controller) Wait(halt <-chan struct{}) bool {
	for {
		select {
		case <-halt:
			return false
		default:
		}

		if c.Deliver() {
			return true
		}

		select {
		case <-c.signal:
		case <-halt:
			return false
		}
	}
}

// StartTimer raises a Timer event every interval until Stop is called.
func (c *Controller) StartTimer(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interrupt: timer interval must be positive, got %v", interval)
	}

	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.ticker != nil {
		return fmt.Errorf("interrupt: timer already running, call Stop() first")
	}

	c.ticker = time.NewTicker(interval)
	c.done = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.runTimer(c.ticker, c.done, c.stopped)
	return nil
}

func (c *Controller) runTimer(ticker *time.Ticker, done, stopped chan struct{}) {
	defer close(stopped)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.Raise(Timer)
		}
	}
}

// Stop stops the timer and waits for its goroutine to exit. It is safe to
// call when no timer is running.
func (c *Controller) Stop() {
	c.timerMu.Lock()
	if c.ticker == nil {
		c.timerMu.Unlock()
		return
	}
	close(c.done)
	stopped := c.stopped
	c.ticker = nil
	c.timerMu.Unlock()

	<-stopped
}
