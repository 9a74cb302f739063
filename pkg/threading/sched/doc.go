/*
Package sched implements a user-space thread scheduler on top of a single
simulated CPU.

A System owns a fixed table of thread control blocks, a High and a Low ready
queue, a disk wait queue and an idle task. Threads run one at a time. The
running thread gives up the CPU when it exits, when it blocks on a disk read,
or at a safe point where a pending timer interrupt finds its quantum used up.

# Scheduling

The next thread is always the oldest ready High thread, then the oldest ready
Low thread. If neither queue holds a thread the running thread continues; if
it cannot, the idle task runs while threads wait on reads the device can
still complete. Otherwise the System halts with an *ExhaustedError, which
wraps ErrSchedulerExhausted. Its Reason is "complete" when every thread has
finished and "deadlocked" when threads still wait on reads a closed device
dropped.

Low threads are time-sliced: every timer tick costs one tick of the quantum
and an expired thread goes to the back of the Low queue. High threads run
until they exit or block. The behaviour is selected with a Policy:

	PolicyRR        one queue, every thread time-sliced
	PolicyRRF       High FIFO ahead of round-robin Low
	PolicyRRFEager  PolicyRRF, new High threads dispatched at once
	PolicyRRFD      PolicyRRFEager plus blocking disk reads

# Threads

Each thread is a goroutine that only executes while it holds the CPU. A
thread whose entry function returns, or panics, exits. Interrupts are only
taken at safe points, so long-running threads call Checkpoint:

	s, err := sched.New(sched.DefaultConfig())
	if err != nil {
		return err
	}

	err = s.Run(ctx, func() {
		for i := 0; i < 3; i++ {
			s.Create(func() {
				for {
					work()
					s.Checkpoint()
				}
			}, sched.Low)
		}
		s.Exit()
	})

Run returns once the System halts. Use ExitCode to turn the result into a
process exit status.

# Disk reads

Read returns a cached block at once. Otherwise the calling thread moves to
the wait queue, the read is submitted to the disk device and another thread
runs. The device raises a disk interrupt on completion; the handler moves the
reader back to its ready queue, and under an eager policy a High reader
preempts a running Low thread.

# Package-level functions

Create, Exit, CurrentID, SetPriority, GetPriority, Read and Checkpoint operate
on Default, a process-wide System that initializes itself on first use and
makes the calling goroutine thread 0.
*/
package sched
