// Package callable holds the functions a job can invoke. A call record only
// stores a callable's name; the binary that runs the job must have
// registered a function under that name.
package callable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// ErrUnknownCallable is returned by Lookup for unregistered names.
var ErrUnknownCallable = errors.New("unknown callable")

// Func is the uniform calling convention. A null result means the call
// produced no value.
type Func func(ctx context.Context, args []cty.Value, kwargs map[string]cty.Value) (cty.Value, error)

// Module is implemented by packages that contribute callables.
type Module interface {
	Register(r *Registry)
}

// Registry maps names to callables.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under name. Registering a name twice is a programming
// error and panics.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		panic(fmt.Sprintf("callable with name '%s' already registered", name))
	}
	slog.Debug("Registering callable.", "name", name)
	r.funcs[name] = fn
}

// RegisterFunc wraps a typed Go function with Wrap and registers it. It
// panics if fn has an unsupported signature.
func (r *Registry) RegisterFunc(name string, fn any) {
	wrapped, err := Wrap(fn)
	if err != nil {
		panic(fmt.Sprintf("callable '%s': %v", name, err))
	}
	r.Register(name, wrapped)
}

// Lookup returns the callable registered under name.
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallable, name)
	}
	return fn, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
