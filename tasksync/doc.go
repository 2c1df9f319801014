// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package tasksync provides the synchronization primitives built on the
// engine's suspend/resume protocol: the ManualEvent broadcast counter,
// task-aware mutexes and condition variables, and a priority-ordered bounded
// semaphore. ManualEvent is safe across threads; the mutexes and the
// semaphore coordinate tasks and treat misuse as fatal.
package tasksync
