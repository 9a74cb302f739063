// Package trace records scheduler lifecycle events.
//
// Every event is kept in an ordered in-memory log and written to a logrus
// logger with structured fields (event, from, to, thread, instance). Tests
// assert on the recorded order; the metrics package subscribes to the same
// stream.
//
// Event.String renders the classic console lines:
//
//	*** THREAD 1 FINISHED
//	*** THREAD 1 TERMINATED: SET CONTEXT OF 2
//	*** SWAPCONTEXT FROM 2 TO 3
//	*** THREAD 3 PREEMPTED: SET CONTEXT OF 4
//	*** THREAD 4 READ FROM DISK
//	*** THREAD 4 READY
//	*** FINISH
package trace
