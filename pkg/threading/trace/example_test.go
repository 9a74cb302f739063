package trace_test

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

// Example shows the console rendering of a short run.
func Example() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := trace.NewWithConfig(trace.Config{Logger: logger})

	log.Record(trace.Event{Kind: trace.Swap, From: 0, To: 1})
	log.Record(trace.Event{Kind: trace.Finished, Thread: 1})
	log.Record(trace.Event{Kind: trace.Terminated, From: 1, To: 0})

	for _, e := range log.Events() {
		fmt.Println(e)
	}
	// Output:
	// *** SWAPCONTEXT FROM 0 TO 1
	// *** THREAD 1 FINISHED
	// *** THREAD 1 TERMINATED: SET CONTEXT OF 0
}
