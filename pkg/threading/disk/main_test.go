package disk

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks that closed devices leave no worker goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
