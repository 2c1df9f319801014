// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error types shared across the hioload-fiber core.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrNotSupported  = errors.New("operation not supported by this driver")
	ErrDriverClosed  = errors.New("driver is closed")
	ErrWrongThread   = errors.New("operation rejected: task is pinned to another thread")
	ErrTimeout       = errors.New("wait timed out")
	ErrPoolClosed    = errors.New("connection pool is closed")
	ErrWorkersClosed = errors.New("worker group is shut down")
)

// ProgrammingError marks fatal API misuse: resuming a task in the wrong
// state, unlocking a primitive that is not held, releasing a dead handle.
// These are never recoverable conditions; the engine panics with one.
type ProgrammingError struct {
	Op     string
	Detail string
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("hioload-fiber: %s: %s", e.Op, e.Detail)
}

// Misuse panics with a ProgrammingError. Callers hitting this have a bug;
// there is nothing sensible to return.
func Misuse(op, format string, args ...any) {
	panic(&ProgrammingError{Op: op, Detail: fmt.Sprintf(format, args...)})
}
