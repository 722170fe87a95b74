package scope

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrFunctionNotFound reports a call to a name nothing was registered under.
var ErrFunctionNotFound = errors.New("scope: function not registered")

// Function is a Go function callable from expressions. Names are matched
// case-insensitively.
type Function func(args ...any) (any, error)

// FunctionRegistry holds the functions exposed to compiled expressions. Calls
// to a registered function are keyed on their first argument reference when
// watched, so `format(user.name)` re-runs when user.name changes.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// Register adds fn under name. The name must be a valid identifier and must
// not already be taken.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	switch {
	case fn == nil:
		return fmt.Errorf("scope: function %q is nil", name)
	case !isIdentifier(name):
		return fmt.Errorf("scope: function name %q is not an identifier", name)
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, taken := r.functions[key]; taken {
		return fmt.Errorf("scope: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Unregister removes name and reports whether it was present.
func (r *FunctionRegistry) Unregister(name string) bool {
	if r == nil {
		return false
	}
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.functions[key]; !ok {
		return false
	}
	delete(r.functions, key)
	return true
}

// Clone returns an independent copy. Compilers clone the registry they are
// given so later registrations do not leak into compiled programs.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewFunctionRegistry()
	for name, fn := range r.functions {
		out.functions[name] = fn
	}
	return out
}

// Call runs the function registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	fn := r.lookup(name)
	if fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrFunctionNotFound, name)
	}
	return fn(args...)
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	return r.lookup(name) != nil
}

// Names returns the registered names, lower-cased and sorted.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *FunctionRegistry) lookup(name string) Function {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.functions[strings.ToLower(name)]
}

// WithFunctionRegistry exposes a copy of registry to expressions compiled by
// the default compiler.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *runtimeConfig) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

// WithCustomFunction registers a single function for the default compiler.
// Invalid or duplicate names are ignored.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *runtimeConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}
