// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package connpool implements a generic pooled-resource abstraction for
// tasks: lazily created resources bounded by a semaphore, handed out
// through reference-counted handles with explicit by-task ownership.
package connpool
