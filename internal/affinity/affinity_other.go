//go:build !linux

// File: internal/affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

func platformPin(cpu int) error {
	return ErrNotSupported
}
