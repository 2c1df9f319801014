// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package workers distributes task bodies across a fixed set of OS threads,
// each running its own fiber engine and event driver. Work placed on the
// shared queue goes to whichever worker wakes first; broadcast work reaches
// every worker.
package workers
