// Package gokern structured error types for better error handling
package gokern

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Memory errors
	ErrTypeMemory ErrorType = iota
	// Invalid argument errors
	ErrTypeInvalidArg
	// Execution errors
	ErrTypeExecution
	// Device errors
	ErrTypeDevice
	// Barrier deadlocks
	ErrTypeDeadlock
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Op      string      // Operation that failed
	Message string      // Human-readable message
	Err     error       // Underlying error if any
	Context interface{} // Additional context
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gokern %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("gokern %s error in %s: %s",
		e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same type, operation and message. Any deadlock
// error matches ErrDeadlock.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Type == ErrTypeDeadlock {
		return e.Type == ErrTypeDeadlock
	}
	return t.Type == e.Type && t.Op == e.Op && t.Message == e.Message
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeMemory:
		return "Memory"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	case ErrTypeExecution:
		return "Execution"
	case ErrTypeDevice:
		return "Device"
	case ErrTypeDeadlock:
		return "Deadlock"
	default:
		return "Unknown"
	}
}

// Common error constructors

// NewMemoryError creates a memory-related error
func NewMemoryError(op string, message string, err error) error {
	return &Error{
		Type:    ErrTypeMemory,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return &Error{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
	}
}

// NewExecutionError creates an execution error
func NewExecutionError(op string, message string, err error) error {
	return &Error{
		Type:    ErrTypeExecution,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewDeviceError creates a device error
func NewDeviceError(op string, message string) error {
	return &Error{
		Type:    ErrTypeDevice,
		Op:      op,
		Message: message,
	}
}

// NewDeadlockError creates a deadlock error for the block at coordinate
// block.
func NewDeadlockError(op string, block Dim3) error {
	return &Error{
		Type:    ErrTypeDeadlock,
		Op:      op,
		Message: fmt.Sprintf("barrier cannot complete in block %v: a unit retired while block-mates wait", block),
		Context: block,
	}
}

// Common pre-defined errors

var (
	// ErrOutOfMemory indicates memory allocation failure
	ErrOutOfMemory = NewMemoryError("Malloc", "out of memory", nil)

	// ErrInvalidSize indicates invalid size parameter
	ErrInvalidSize = NewInvalidArgError("Malloc", "size must be positive")

	// ErrSizeMismatch indicates a copy larger than one of its buffers
	ErrSizeMismatch = NewInvalidArgError("Memcpy", "size exceeds buffer capacity")

	// ErrDoubleFree indicates double free attempt
	ErrDoubleFree = NewMemoryError("Free", "double free detected", nil)

	// ErrDeviceNotFound indicates an unknown device ID
	ErrDeviceNotFound = NewDeviceError("SelectDevice", "device not found")

	// ErrDeviceClosed indicates use of a device after registry shutdown
	ErrDeviceClosed = NewDeviceError("Device", "device has been shut down")

	// ErrContextDestroyed indicates use of a context after Destroy
	ErrContextDestroyed = NewDeviceError("Context", "context has been destroyed")

	// ErrKernelFailed indicates a unit's kernel body faulted
	ErrKernelFailed = NewExecutionError("Kernel", "kernel execution failed", nil)

	// ErrDeadlock indicates a broken block barrier
	ErrDeadlock = &Error{Type: ErrTypeDeadlock, Op: "Barrier", Message: "deadlock detected"}
)

// KernelError reports the unit whose kernel body faulted.
type KernelError struct {
	Backend     Backend
	Block       Dim3 // Block coordinate within the grid
	Unit        Dim3 // Unit coordinate within the block
	BlockLinear int
	UnitLinear  int
	Err         error // Fault returned or raised by the kernel body
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("gokern: kernel execution failed on %s at block %v (#%d) unit %v (#%d): %v",
		e.Backend, e.Block, e.BlockLinear, e.Unit, e.UnitLinear, e.Err)
}

// Unwrap returns the kernel fault.
func (e *KernelError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrKernelFailed.
func (e *KernelError) Is(target error) bool {
	return target == ErrKernelFailed
}

func errorType(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// IsMemoryError checks if an error is a memory error
func IsMemoryError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeMemory
}

// IsInvalidArgError checks if an error is an invalid argument error
func IsInvalidArgError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeInvalidArg
}

// IsDeviceError checks if an error is a device error
func IsDeviceError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeDevice
}

// IsExecutionError checks if an error is a kernel execution error
func IsExecutionError(err error) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return true
	}
	t, ok := errorType(err)
	return ok && t == ErrTypeExecution
}

// IsDeadlock checks if an error reports a broken barrier
func IsDeadlock(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeDeadlock
}
