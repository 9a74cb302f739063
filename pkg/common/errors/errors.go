package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the uthread library

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrTableFull indicates that no free thread control block is left.
	// It is the only recoverable scheduler error: the table is left untouched.
	ErrTableFull = errors.New("thread table full")

	// ErrStackAllocationFailed indicates that a thread stack could not be
	// allocated. It is fatal for the scheduler that observes it.
	ErrStackAllocationFailed = errors.New("stack allocation failed")

	// ErrSchedulerExhausted indicates that no thread is runnable and the
	// running thread cannot continue. It is fatal.
	ErrSchedulerExhausted = errors.New("no runnable thread")

	// ErrDoubleRelease indicates that a stack was released twice
	ErrDoubleRelease = errors.New("stack already released")

	// ErrDiskUnavailable indicates a blocking read on a scheduler configured
	// without the disk-wait path
	ErrDiskUnavailable = errors.New("disk path not configured")
)

// IsFatal returns true if the error leaves the scheduler without a safe
// continuation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStackAllocationFailed) || errors.Is(err, ErrSchedulerExhausted)
}

// IsRecoverable returns true if the caller may retry or carry on after err.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrTableFull)
}

// ValidationError describes an invalid configuration value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap makes every ValidationError match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// OperationError records which operation of which module failed.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches free-form context and returns the same error.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}
