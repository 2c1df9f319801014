// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package api defines the contracts of the hioload-fiber core: the abstract
// event-driver capability set consumed by the task engine, the narrow callback
// surface the driver uses to re-enter the engine, and the shared error
// taxonomy. Concrete drivers live elsewhere (see driver/inproc); this package
// carries no implementation.
package api
