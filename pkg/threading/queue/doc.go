/*
Package queue provides the FIFO container the scheduler uses to hold thread
references.

A Queue stores references, never copies: enqueueing a pointer to a thread
control block and dequeueing it later yields the same pointer. The zero value
is an empty queue ready for use.

Basic usage:

	var ready queue.Queue[*tcb]
	ready.Enqueue(t1)
	ready.Enqueue(t2)

	next, ok := ready.Dequeue() // t1, true

Thread Safety:

A Queue is not safe for concurrent use. The scheduler serializes every access
with its own lock and the interrupt mask discipline, so adding a second lock
here would only hide ordering bugs.
*/
package queue
