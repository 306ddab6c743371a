package bootstrap

import (
	"context"
	"fmt"
)

// Hook is a shutdown callback.
type Hook func(ctx context.Context) error

// OnStop registers hooks that run during Shutdown after bridges are closed.
// Hooks run in reverse registration order, so providers set up first are
// torn down last.
func (a *App) OnStop(hooks ...Hook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStop = append(a.onStop, hooks...)
}

// runStopHooks runs every hook, returning the first error.
func (a *App) runStopHooks(ctx context.Context) error {
	a.mu.Lock()
	hooks := a.onStop
	a.onStop = nil
	a.mu.Unlock()

	var first error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil && first == nil {
			first = fmt.Errorf("hook %d failed: %w", i, err)
		}
	}
	return first
}
