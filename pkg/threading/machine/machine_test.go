package machine

import (
	"errors"
	"testing"

	"github.com/vnykmshr/uthread/internal/testutil"
	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
)

func TestHeapAllocator(t *testing.T) {
	a := NewHeapAllocator(0)

	s, err := a.Allocate(1024)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, s.Size(), 1024)
	testutil.AssertEqual(t, a.LiveBytes(), 1024)
	testutil.AssertEqual(t, s.Released(), false)

	testutil.AssertNoError(t, a.Release(s))
	testutil.AssertEqual(t, s.Released(), true)
	testutil.AssertEqual(t, a.LiveBytes(), 0)

	err = a.Release(s)
	testutil.AssertErrorIs(t, err, uterrors.ErrDoubleRelease)
	testutil.AssertEqual(t, a.ReleasedCount(), 1)
}

func TestHeapAllocatorLimit(t *testing.T) {
	a := NewHeapAllocator(2048)

	first, err := a.Allocate(1024)
	testutil.AssertNoError(t, err)
	_, err = a.Allocate(1024)
	testutil.AssertNoError(t, err)

	_, err = a.Allocate(1)
	testutil.AssertErrorIs(t, err, uterrors.ErrStackAllocationFailed)

	testutil.AssertNoError(t, a.Release(first))
	_, err = a.Allocate(1024)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, a.Allocated(), 3)
}

func TestHeapAllocatorInvalidSize(t *testing.T) {
	a := NewHeapAllocator(0)
	for _, size := range []int{0, -1} {
		_, err := a.Allocate(size)
		testutil.AssertErrorIs(t, err, uterrors.ErrStackAllocationFailed)
	}
}

func TestSwitchTwoWay(t *testing.T) {
	cpu := NewCPU()
	var order []string
	var a, b *Context

	a = cpu.Prepare(func() {
		order = append(order, "a1")
		cpu.SwitchTwoWay(a, b)
		order = append(order, "a2")
		cpu.SwitchOneWay(b)
	}, nil)

	b = cpu.Prepare(func() {
		order = append(order, "b1")
		cpu.SwitchTwoWay(b, a)
		order = append(order, "b2")
		cpu.Halt(nil)
	}, nil)

	cpu.Resume(a)
	cpu.Wait()

	testutil.AssertSliceEqual(t, order, []string{"a1", "b1", "a2", "b2"})
	testutil.AssertNoError(t, cpu.Err())
}

func TestSwitchOneWayRunsDefersFirst(t *testing.T) {
	cpu := NewCPU()
	var order []string
	var next *Context

	next = cpu.Prepare(func() {
		order = append(order, "next")
		cpu.Halt(nil)
	}, nil)

	first := cpu.Prepare(func() {
		defer func() { order = append(order, "deferred") }()
		order = append(order, "first")
		cpu.SwitchOneWay(next)
		order = append(order, "unreachable")
	}, nil)

	cpu.Resume(first)
	cpu.Wait()

	testutil.AssertSliceEqual(t, order, []string{"first", "deferred", "next"})
}

func TestCapturedContext(t *testing.T) {
	cpu := NewCPU()
	var order []string
	done := make(chan struct{})

	cpu.Go(func() {
		defer close(done)
		main := cpu.Capture()
		worker := cpu.Prepare(func() {
			order = append(order, "worker")
			cpu.SwitchOneWay(main)
		}, nil)

		order = append(order, "main")
		cpu.SwitchTwoWay(main, worker)
		order = append(order, "main again")
		if cpu.Current() != main {
			t.Error("main does not hold the CPU after switching back")
		}
		cpu.Halt(nil)
	})

	cpu.Wait()
	<-done
	testutil.AssertSliceEqual(t, order, []string{"main", "worker", "main again"})
}

func TestSwitchToSelf(t *testing.T) {
	cpu := NewCPU()
	returned := false
	var self *Context

	self = cpu.Prepare(func() {
		cpu.SwitchTwoWay(self, self)
		returned = true
		cpu.Halt(nil)
	}, nil)

	before := cpu.Switches()
	cpu.Resume(self)
	cpu.Wait()

	testutil.AssertEqual(t, returned, true)
	testutil.AssertEqual(t, cpu.Switches(), before+1)
}

func TestEntryReturnHalts(t *testing.T) {
	cpu := NewCPU()
	ctx := cpu.Prepare(func() {}, nil)

	cpu.Resume(ctx)
	cpu.Wait()

	testutil.AssertErrorIs(t, cpu.Err(), ErrEntryReturned)
}

func TestHaltReleasesParkedContexts(t *testing.T) {
	cpu := NewCPU()
	parked := make(chan struct{})
	var a, b *Context

	a = cpu.Prepare(func() {
		cpu.SwitchTwoWay(a, b)
		t.Error("a resumed after halt")
	}, nil)
	b = cpu.Prepare(func() {
		close(parked)
		<-cpu.Halted()
		cpu.SwitchTwoWay(b, a)
		t.Error("b resumed after halt")
	}, nil)

	// Never started.
	cpu.Prepare(func() { t.Error("unstarted context ran") }, nil)

	cpu.Resume(a)
	<-parked

	boom := errors.New("boom")
	cpu.Halt(boom)
	cpu.Halt(errors.New("second"))
	cpu.Wait()

	testutil.AssertErrorIs(t, cpu.Err(), boom)
}

func TestSwitchToReleasedStackPanics(t *testing.T) {
	cpu := NewCPU()
	alloc := NewHeapAllocator(0)
	stack, err := alloc.Allocate(128)
	testutil.AssertNoError(t, err)

	target := cpu.Prepare(func() {}, stack)
	testutil.AssertNoError(t, alloc.Release(stack))

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
		cpu.Halt(nil)
		cpu.Wait()
	}()
	cpu.Resume(target)
}
