/*
Package machine provides the execution-context primitive the scheduler is
built on: a single simulated CPU, saved contexts and owned stacks.

Each logical thread is a goroutine that runs only while its Context holds the
CPU permit. Switching hands the permit to another context; a two-way switch
parks the caller until the permit comes back, a one-way switch abandons the
caller for good. Exactly one context holds the permit at a time, so code on
top of this package observes a single core even though the Go runtime may
schedule the goroutines on many.

Basic usage:

	cpu := machine.NewCPU()
	stacks := machine.NewHeapAllocator(0)

	stack, _ := stacks.Allocate(64 << 10)
	var main *machine.Context
	worker := cpu.Prepare(func() {
		fmt.Println("worker runs")
		cpu.SwitchOneWay(main) // never returns
	}, stack)

	cpu.Go(func() {
		main = cpu.Capture()
		cpu.SwitchTwoWay(main, worker) // returns once worker switches back
		cpu.Halt(nil)
	})
	cpu.Wait()

Primitives:

  - Capture: context for the calling goroutine
  - Prepare: new context bound to an entry point and a stack
  - SwitchOneWay: transfer that never returns to its call site
  - SwitchTwoWay: transfer that returns once the saved context is resumed
  - Halt / Wait: stop every context and wait for their goroutines

Contexts created by Prepare run the abandoned thread's deferred calls before
the one-way hand-off completes, so no two contexts ever execute at once.
A captured context cannot offer that: its goroutine was not started here.

Switching to a context whose stack has been released panics. Releasing a
stack twice returns ErrDoubleRelease.
*/
package machine
