package tracker

import (
	"context"
	"errors"
	"sync"
)

// Factory builds a controller for subject.
type Factory func(subject string) (*Controller, error)

// Registry keeps at most one tracked subject per host. Starting a new subject
// stops the controller tracking the previous one.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	current *Controller
}

// NewRegistry returns an empty Registry that builds controllers with factory.
func NewRegistry(factory Factory) (*Registry, error) {
	if factory == nil {
		return nil, errors.New("factory is required")
	}
	return &Registry{factory: factory}, nil
}

// StartTracking stops whatever is currently tracked, then builds and starts a
// controller for subject. It returns once the first poll has been handled.
func (r *Registry) StartTracking(ctx context.Context, subject string) (*Controller, error) {
	ctrl, err := r.factory(subject)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	prev := r.current
	r.current = ctrl
	r.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	ctrl.Start(ctx)
	return ctrl, nil
}

// StopTracking stops and forgets the current controller, if any.
func (r *Registry) StopTracking() {
	r.mu.Lock()
	prev := r.current
	r.current = nil
	r.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
}

// Current returns the controller started last, or nil.
func (r *Registry) Current() *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
