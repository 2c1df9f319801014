// File: task/storage.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task-local storage. Each task carries a key→value map cleared when the
// task terminates and before its fiber is reused, so values never bleed
// between bodies sharing a recycled fiber.

package task

import "context"

// SetLocal stores a task-local value for the running task.
func SetLocal(ctx context.Context, key, value any) {
	f := mustFiber(ctx, "local storage")
	f.locals[key] = value
}

// Local returns the task-local value for key, if any.
func Local(ctx context.Context, key any) (any, bool) {
	f := mustFiber(ctx, "local storage")
	v, ok := f.locals[key]
	return v, ok
}

// DeleteLocal removes a task-local value.
func DeleteLocal(ctx context.Context, key any) {
	f := mustFiber(ctx, "local storage")
	delete(f.locals, key)
}
