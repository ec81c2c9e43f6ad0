package ecu

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDecoderNotFound is matched by errors returned from Registry.Lookup
// for unknown decoder names.
var ErrDecoderNotFound = errors.New("decoder not found")

// NotFoundError reports an unknown decoder name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ecu: decoder %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrDecoderNotFound }

// Factory returns a fresh Decoder.
type Factory func() Decoder

// Registry resolves decoder names to factories. It is built once at
// startup and handed to whatever needs to select a dialect.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in Fenix dialects.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("Fenix3", func() Decoder { return Fenix3{} })
	r.Register("Fenix1", func() Decoder { return Fenix1{} })
	r.Register("Fenix52B", func() Decoder { return Fenix52B{} })
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, fn Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = fn
}

// Lookup returns a new decoder for name.
func (r *Registry) Lookup(name string) (Decoder, error) {
	r.mu.RLock()
	fn, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return fn(), nil
}

// Names returns the registered decoder names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
