package machine

import (
	"fmt"
	"sync"
	"sync/atomic"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
)

// DefaultStackSize is the stack size used when none is configured.
const DefaultStackSize = 64 << 10

// Stack is an owned stack allocation.
type Stack struct {
	id       uint64
	size     int
	mem      []byte
	released atomic.Bool
}

// ID returns the allocation number of the stack.
func (s *Stack) ID() uint64 {
	return s.id
}

// Size returns the stack size in bytes.
func (s *Stack) Size() int {
	return s.size
}

// Released reports whether the stack has been handed back to its allocator.
func (s *Stack) Released() bool {
	return s.released.Load()
}

// StackAllocator hands out and takes back thread stacks.
type StackAllocator interface {
	// Allocate returns a new stack of size bytes.
	Allocate(size int) (*Stack, error)

	// Release returns the stack. A second release of the same stack fails
	// with ErrDoubleRelease and has no effect.
	Release(s *Stack) error
}

// HeapAllocator allocates stacks on the Go heap, optionally bounded by a
// limit on live bytes.
type HeapAllocator struct {
	limit int

	mu        sync.Mutex
	nextID    uint64
	live      int
	allocated int
	released  int
}

// NewHeapAllocator creates an allocator. A limit of 0 means unbounded.
func NewHeapAllocator(limit int) *HeapAllocator {
	return &HeapAllocator{limit: limit}
}

// Allocate implements StackAllocator.
func (a *HeapAllocator) Allocate(size int) (*Stack, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid stack size %d", uterrors.ErrStackAllocationFailed, size)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.limit > 0 && a.live+size > a.limit {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			uterrors.ErrStackAllocationFailed, size, a.live, a.limit)
	}

	a.nextID++
	a.live += size
	a.allocated++
	return &Stack{
		id:   a.nextID,
		size: size,
		mem:  make([]byte, size),
	}, nil
}

// Release implements StackAllocator.
func (a *HeapAllocator) Release(s *Stack) error {
	if s == nil {
		return fmt.Errorf("machine: release of nil stack")
	}
	if !s.released.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: stack %d", uterrors.ErrDoubleRelease, s.id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.live -= s.size
	a.released++
	s.mem = nil
	return nil
}

// Allocated returns the number of successful allocations.
func (a *HeapAllocator) Allocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated
}

// ReleasedCount returns the number of successful releases.
func (a *HeapAllocator) ReleasedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

// LiveBytes returns the bytes currently allocated and not released.
func (a *HeapAllocator) LiveBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}
