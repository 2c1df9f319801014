// File: task/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package task

import (
	"context"

	"go.uber.org/zap"
)

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the structured logger used for uncaught task failures and
// shutdown diagnostics. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithIdleCallback installs the idle callback invoked by NotifyIdle after
// each ready-queue drain. Returning true requests another pass before the
// driver is allowed to block.
func WithIdleCallback(fn func() bool) Option {
	return func(e *Engine) { e.idleFn = fn }
}

// WithBaseContext sets the context task bodies derive from. Default is
// context.Background().
func WithBaseContext(ctx context.Context) Option {
	return func(e *Engine) {
		if ctx != nil {
			e.baseCtx = ctx
		}
	}
}
