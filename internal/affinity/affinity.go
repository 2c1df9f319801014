// File: internal/affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU affinity for worker threads. Pinning is best-effort: platforms
// without sched_setaffinity report ErrNotSupported and workers run unpinned.

package affinity

import "errors"

// ErrNotSupported indicates CPU affinity is not available on this platform.
var ErrNotSupported = errors.New("affinity: CPU pinning not supported on this platform")

// Pin binds the calling goroutine's OS thread to the given logical CPU.
// The caller must have locked the goroutine to its thread first.
func Pin(cpu int) error {
	return platformPin(cpu)
}
