/*
Package uthread provides a user-space thread scheduler: cooperative threads
multiplexed on one simulated CPU, with round-robin time slices, High/Low
priorities, timer preemption and blocking disk reads.

Threading (pkg/threading):
  - sched: thread table, ready queues, scheduler policy and activator
  - machine: execution contexts, one-way and two-way switches, stacks
  - interrupt: timer and disk interrupts delivered at safe points
  - disk: block device, page cache and memory or Redis backing stores
  - trace: ordered log of lifecycle events
  - queue: FIFO queues of thread control blocks

Observability (pkg/metrics):
  - Prometheus metrics fed by the trace log

Example usage:

	import "github.com/vnykmshr/uthread/pkg/threading/sched"

	s, _ := sched.New(sched.DefaultConfig())
	err := s.Run(ctx, func() {
		s.Create(worker, sched.Low)
		s.Create(urgent, sched.High)
	})

The uthread command (cmd/uthread) runs YAML workloads and the built-in
scenarios, and can serve metrics and scheduler state over HTTP.
*/
package uthread
