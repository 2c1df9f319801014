// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package task implements the cooperative fiber engine: reusable stackful
// tasks multiplexed onto one event-driven OS thread each. Tasks are pinned to
// the engine that spawned them; cross-thread coordination goes through
// Task.Wake and the synchronization primitives built on top of it, never
// through direct fiber access.
package task
