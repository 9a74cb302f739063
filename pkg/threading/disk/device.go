package disk

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/common/validation"
	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/queue"
)

// Request is a single block read.
type Request struct {
	// Owner identifies the thread waiting on the request
	Owner int

	// Block is the block number to read
	Block uint64

	// Data and Err are filled in when the request completes
	Data []byte
	Err  error

	// Submitted and Completed are the request timestamps
	Submitted time.Time
	Completed time.Time
}

// Duration returns how long the device took to serve the request.
func (r *Request) Duration() time.Duration {
	return r.Completed.Sub(r.Submitted)
}

// Config configures a Device.
type Config struct {
	// Workers is the number of requests served concurrently. With a single
	// worker requests complete in submission order.
	Workers int

	// QueueSize bounds the number of submitted requests not yet picked up
	QueueSize int

	// Latency is added to every request before it completes
	Latency time.Duration

	// Timeout bounds a single Store.Load call; zero means no bound
	Timeout time.Duration
}

// DefaultConfig returns a single-worker device configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   1,
		QueueSize: 64,
		Latency:   time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("disk", "Workers", c.Workers); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("disk", "QueueSize", c.QueueSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("disk", "Latency", c.Latency); err != nil {
		return err
	}
	return validation.ValidateNonNegativeDuration("disk", "Timeout", c.Timeout)
}

// Device serves read requests asynchronously and raises a Disk interrupt
// for each completion.
type Device struct {
	store  Store
	ctrl   *interrupt.Controller
	config Config

	requests chan *Request
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu          sync.Mutex
	completions queue.Queue[*Request]
	closed      bool
	closeOnce   sync.Once

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewDevice starts a device reading from store and raising interrupts on
// ctrl.
func NewDevice(store Store, ctrl *interrupt.Controller, config Config) (*Device, error) {
	if err := validation.ValidateNotNil("disk", "Store", store); err != nil {
		return nil, err
	}
	if ctrl == nil {
		return nil, validation.ValidateNotNil("disk", "Interrupts", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		store:    store,
		ctrl:     ctrl,
		config:   config,
		requests: make(chan *Request, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d, nil
}

// Submit queues req. It blocks while the queue is full.
func (d *Device) Submit(req *Request) error {
	if req == nil {
		return fmt.Errorf("disk: request cannot be nil")
	}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return fmt.Errorf("disk: cannot submit request: %w", uterrors.ErrClosed)
	}

	req.Submitted = time.Now()
	select {
	case d.requests <- req:
		d.submitted.Add(1)
		return nil
	case <-d.ctx.Done():
		return fmt.Errorf("disk: cannot submit request: %w", uterrors.ErrClosed)
	}
}

// Complete removes and returns the oldest completed request.
func (d *Device) Complete() (*Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completions.Dequeue()
}

// InFlight returns the number of submitted requests not yet completed.
func (d *Device) InFlight() int64 {
	return d.submitted.Load() - d.completed.Load()
}

// Pending reports whether a completion can still be collected: one is queued
// or a request is in flight on an open device. A closed device drops the
// requests it had not served.
func (d *Device) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.completions.Len() > 0 {
		return true
	}
	return !d.closed && d.InFlight() > 0
}

// Stats returns the submitted, completed and failed request counts.
func (d *Device) Stats() (submitted, completed, failed int64) {
	return d.submitted.Load(), d.completed.Load(), d.failed.Load()
}

// Close stops the workers. Requests still queued are dropped, and a Disk
// interrupt is raised so a waiting scheduler notices.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.cancel()
		d.wg.Wait()
		d.ctrl.Raise(interrupt.Disk)
	})
	d.wg.Wait()
	return nil
}

func (d *Device) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case req := <-d.requests:
			if !d.serve(req) {
				return
			}
		}
	}
}

func (d *Device) serve(req *Request) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			req.Err = fmt.Errorf("disk: store panicked: %v\nStack trace:\n%s", r, debug.Stack())
			d.finish(req)
			ok = true
		}
	}()

	if d.config.Latency > 0 {
		timer := time.NewTimer(d.config.Latency)
		select {
		case <-timer.C:
		case <-d.ctx.Done():
			timer.Stop()
			return false
		}
	}

	ctx := d.ctx
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	req.Data, req.Err = d.store.Load(ctx, req.Block)
	if d.ctx.Err() != nil {
		return false
	}
	d.finish(req)
	return true
}

func (d *Device) finish(req *Request) {
	req.Completed = time.Now()
	if req.Err != nil {
		d.failed.Add(1)
	}

	d.mu.Lock()
	d.completions.Enqueue(req)
	d.mu.Unlock()
	d.completed.Add(1)

	d.ctrl.Raise(interrupt.Disk)
}
