// Package callback implements the named-callback runtime: user code
// (lang.Interpreter scripts) registers callbacks by name, and the
// dispatcher invokes them by name with typed arguments drawn from bus
// events.
package callback

import (
	"fmt"
	"sync"
)

// Func is a registered callback. args is positional and loosely typed,
// matching the dynamic nature of the interpreters that register these
// (an embedded scripting language has no static arg types to check
// against).
type Func func(args ...any) error

// Runtime is a name -> Func registry, safe for concurrent registration
// and invocation (registration from the main loop while callbacks fire
// from dispatch, which also runs on the main loop in this design, but the
// mutex keeps the type safe even if that changes).
type Runtime struct {
	mu        sync.RWMutex
	callbacks map[string]Func
}

// NewRuntime creates an empty Runtime.
func NewRuntime() *Runtime {
	return &Runtime{callbacks: make(map[string]Func)}
}

// Register installs fn under name, replacing any previous registration.
func (r *Runtime) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[name] = fn
}

// Unregister removes name, if present.
func (r *Runtime) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, name)
}

// Has reports whether name is currently registered.
func (r *Runtime) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.callbacks[name]
	return ok
}

// Invoke calls the named callback with args. It returns an error if no
// callback is registered under name, or whatever error the callback
// itself returns.
func (r *Runtime) Invoke(name string, args ...any) error {
	r.mu.RLock()
	fn, ok := r.callbacks[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("loopruntime/callback: no callback registered for %q", name)
	}
	return fn(args...)
}

// TryInvoke calls the named callback if registered, silently doing
// nothing otherwise. Used by dispatch for optional hooks (a script that
// doesn't define on_beat should not error every boundary).
func (r *Runtime) TryInvoke(name string, args ...any) {
	r.mu.RLock()
	fn, ok := r.callbacks[name]
	r.mu.RUnlock()
	if ok {
		_ = fn(args...)
	}
}
