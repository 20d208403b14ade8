// Package registry provides a name-keyed registry of strategy constructors.
package registry

import (
	"sort"
	"sync"

	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
)

// Registry maps names to values of T (typically strategies). Safe for concurrent use.
type Registry[T any] struct {
	kind  string
	mu    sync.RWMutex
	items map[string]T
}

// New creates an empty registry. kind is used in error messages (e.g. "fixer").
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, items: make(map[string]T)}
}

// Register adds item under name. Registering the same name twice fails.
func (r *Registry[T]) Register(name string, item T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[name]; exists {
		return exception.NewPipelineErrorf("registry", "%s '%s' already registered", r.kind, name, exception.ErrDuplicateStrategy)
	}
	r.items[name] = item
	return nil
}

// MustRegister is Register for built-in names; it panics on duplicates.
func (r *Registry[T]) MustRegister(name string, item T) {
	if err := r.Register(name, item); err != nil {
		panic(err)
	}
}

// Get returns the item registered under name.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[name]
	if !ok {
		var zero T
		return zero, exception.NewPipelineErrorf("registry", "unknown %s '%s'", r.kind, name, exception.ErrUnknownStrategy)
	}
	return item, nil
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
