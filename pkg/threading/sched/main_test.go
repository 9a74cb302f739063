package sched

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that every thread goroutine, the idle task and the disk
// workers are gone once a System has halted.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
