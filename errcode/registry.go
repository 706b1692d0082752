package errcode

import (
	"fmt"
	"sync"
)

// Registry error code registry, guards against duplicate codes.
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string // code -> module:msg
}

var globalRegistry = &Registry{
	codes: make(map[int]string),
}

// Register registers an error code in the global registry.
// Panics when the same code was already registered with a different meaning.
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register registers an error code.
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := err.Code()
	key := fmt.Sprintf("%s:%s", err.Module(), err.Message())

	if existingKey, exists := r.codes[code]; exists {
		if existingKey != key {
			panic(fmt.Sprintf(
				"error code conflict: code %d is already registered as %s, cannot register as %s",
				code, existingKey, key,
			))
		}
		// same code and key, idempotent
		return err
	}

	r.codes[code] = key
	return err
}

// GetAll returns a copy of every registered code.
func (r *Registry) GetAll() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int]string, len(r.codes))
	for code, key := range r.codes {
		out[code] = key
	}
	return out
}
