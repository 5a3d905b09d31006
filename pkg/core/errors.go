// Package core provides the MemGate engine and turn orchestration.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrEngineClosed indicates use of an engine after Close.
	ErrEngineClosed = errors.New("engine is closed")
)

// MemoryError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "PostTurn",
//	    Err: ErrStorageOperation,
//	}
//	// Error() returns: "memgate: PostTurn: storage operation failed"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "memgate: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("memgate: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("PostTurn", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "PreTurn", "PostTurn", "Close")
//   - err: The underlying error to wrap
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{Op: op, Err: err}
}
