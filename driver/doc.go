// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package driver manages the process-wide state the fiber core needs:
// one event-driver plus engine pair per participating OS thread, with lazy
// construction and explicit teardown. The reference in-process driver lives
// in the inproc subpackage; OS-backed drivers implement api.Driver
// elsewhere.
package driver
