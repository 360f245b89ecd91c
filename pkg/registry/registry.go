// Package registry provides the string-keyed extension points used to
// resolve manifest type discriminators to implementations. Registries
// are plain values constructed once in the command entrypoint and
// threaded explicitly; there is no package-level singleton.
package registry

import (
	"fmt"
	"sort"
)

// Registry maps a string discriminator to an implementation.
type Registry[T any] struct {
	name    string
	entries map[string]T
}

// New creates a registry. The name is used in error messages only.
func New[T any](name string) *Registry[T] {
	return &Registry[T]{
		name:    name,
		entries: make(map[string]T),
	}
}

// Register adds or replaces an entry under key.
func (r *Registry[T]) Register(key string, value T) {
	r.entries[key] = value
}

// Get returns the entry for key.
func (r *Registry[T]) Get(key string) (T, bool) {
	v, ok := r.entries[key]
	return v, ok
}

// Require returns the entry for key or an error naming the registry and
// the known keys.
func (r *Registry[T]) Require(key string) (T, error) {
	v, ok := r.entries[key]
	if !ok {
		return v, fmt.Errorf("unknown %s type %q (known: %v)", r.name, key, r.Keys())
	}
	return v, nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry[T]) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered entries.
func (r *Registry[T]) Len() int {
	return len(r.entries)
}

// Name returns the registry name.
func (r *Registry[T]) Name() string {
	return r.name
}
