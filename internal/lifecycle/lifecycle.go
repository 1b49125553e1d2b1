// Package lifecycle collects teardown callbacks that must run when the host
// process is dismissed (SIGINT/SIGTERM or a normal exit path).
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Hook is a teardown callback. It should honor ctx and return promptly.
type Hook func(ctx context.Context)

// Registrar accepts teardown callbacks.
type Registrar interface {
	OnTeardown(hook Hook)
}

// Hooks is a Registrar that runs its callbacks at most once.
type Hooks struct {
	mu     sync.Mutex
	hooks  []Hook
	fired  bool
	logger *zap.Logger
}

// New builds an empty hook set.
func New(logger *zap.Logger) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{logger: logger}
}

// OnTeardown registers hook. Hooks registered after Teardown has run are
// invoked immediately.
func (h *Hooks) OnTeardown(hook Hook) {
	if hook == nil {
		return
	}
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		h.invoke(context.Background(), hook)
		return
	}
	h.hooks = append(h.hooks, hook)
	h.mu.Unlock()
}

// Teardown runs every registered hook in reverse registration order. Only the
// first call has an effect. A panicking hook is logged and does not prevent
// the remaining hooks from running.
func (h *Hooks) Teardown(ctx context.Context) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h.invoke(ctx, hooks[i])
	}
}

// Len reports how many hooks are waiting to run.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

func (h *Hooks) invoke(ctx context.Context, hook Hook) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("teardown hook panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	hook(ctx)
}
