package admission

import (
	"context"
	"fmt"
	"sync"
)

// Operation a guarded invocation. Args mirror RequestContext.Args.
type Operation func(ctx context.Context, args ...interface{}) (interface{}, error)

// FallbackRegistry named fallback operations invoked on denial.
type FallbackRegistry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewFallbackRegistry creates an empty registry.
func NewFallbackRegistry() *FallbackRegistry {
	return &FallbackRegistry{
		ops: make(map[string]Operation),
	}
}

// Register stores a fallback under name, replacing any previous one.
func (r *FallbackRegistry) Register(name string, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = op
}

// Get resolves a fallback by name.
func (r *FallbackRegistry) Get(name string) (Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFallback, name)
	}
	return op, nil
}
