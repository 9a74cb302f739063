package sched

import (
	"errors"
	"fmt"

	uterrors "github.com/vnykmshr/uthread/pkg/common/errors"
	"github.com/vnykmshr/uthread/pkg/threading/trace"
)

// ExhaustedError reports that no thread could be dispatched. Reason is
// trace.ReasonComplete when every thread has finished and
// trace.ReasonDeadlocked when threads are still waiting but nothing can wake
// them.
type ExhaustedError struct {
	Reason string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("sched: %v (%s)", uterrors.ErrSchedulerExhausted, e.Reason)
}

// Unwrap makes the error match ErrSchedulerExhausted.
func (e *ExhaustedError) Unwrap() error {
	return uterrors.ErrSchedulerExhausted
}

// Process exit codes for the outcomes of Run.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitStack      = 2
	ExitDeadlocked = 3
)

// ExitCode maps the error returned by Run to a process exit code. A run that
// ended because every thread finished is a success.
func ExitCode(err error) int {
	var exhausted *ExhaustedError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exhausted):
		if exhausted.Reason == trace.ReasonComplete {
			return ExitOK
		}
		return ExitDeadlocked
	case errors.Is(err, uterrors.ErrStackAllocationFailed):
		return ExitStack
	default:
		return ExitFailure
	}
}
