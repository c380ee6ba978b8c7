// Package cleanup runs process-exit hooks, such as closing the log file.
package cleanup

import (
	"errors"
	"fmt"
	"sync"
)

var (
	mu    sync.Mutex
	hooks []func() error
)

// Register adds a hook. Hooks run last-registered first.
func Register(hook func() error) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook)
}

// RunAll runs and forgets every hook. A failing hook does not stop the rest.
func RunAll() error {
	mu.Lock()
	pending := hooks
	hooks = nil
	mu.Unlock()

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}
