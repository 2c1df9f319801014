// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package control exposes the fiber core's runtime counters: a registry of
// snapshot sources and a Prometheus collector polling it.
package control
