// Package lang defines the pluggable interpreter surface: anything that
// can turn live-coded source text into an event.Schedule.
package lang

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shakfu/loopruntime/event"
)

// Interpreter compiles source text into a Schedule. Implementations are
// expected to be stateless across calls except for whatever caching they
// choose to do internally; a Dispatch loop may call Compile repeatedly as
// a user edits and re-submits a buffer.
type Interpreter interface {
	// Name identifies the language for diagnostics and for the registry.
	Name() string
	// Extensions lists the file extensions (without the leading dot) this
	// interpreter claims, e.g. "btml".
	Extensions() []string
	// Compile turns source into a Schedule ready for playback.Engine.Play.
	Compile(source string) (*event.Schedule, error)
	// EvalBuffer re-evaluates a live-coding buffer's current source on a
	// beat-boundary crossing, producing the Schedule that should replace
	// whatever is currently playing for that buffer. For a stateless
	// interpreter this is identical to Compile; it exists as a distinct
	// method for interpreters that carry incremental state across edits.
	EvalBuffer(source string) (*event.Schedule, error)
}

// Registry resolves a buffer to an Interpreter by file extension or an
// explicit first-line directive of the form "#lang:<name>".
type Registry struct {
	mu    sync.RWMutex
	byExt  map[string]Interpreter
	byName map[string]Interpreter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Interpreter), byName: make(map[string]Interpreter)}
}

// Register installs interp under its own name and every extension it
// claims, replacing any previous registrations that collide.
func (r *Registry) Register(interp Interpreter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[interp.Name()] = interp
	for _, ext := range interp.Extensions() {
		r.byExt[strings.ToLower(ext)] = interp
	}
}

// ForExtension looks up an interpreter by file extension (without the dot).
func (r *Registry) ForExtension(ext string) (Interpreter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return i, ok
}

// ForName looks up an interpreter by its registered name.
func (r *Registry) ForName(name string) (Interpreter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	return i, ok
}

// directivePrefix is the first-line override a buffer can carry to force
// a specific interpreter regardless of file extension, e.g. when piping
// source in over a socket with no filename attached.
const directivePrefix = "#lang:"

// Resolve picks an interpreter for source given a filename hint (may be
// empty). A leading "#lang:<name>" directive line always wins over the
// filename's extension.
func (r *Registry) Resolve(filename, source string) (Interpreter, error) {
	if nl := strings.IndexByte(source, '\n'); nl >= 0 {
		first := strings.TrimSpace(source[:nl])
		if strings.HasPrefix(first, directivePrefix) {
			name := strings.TrimSpace(strings.TrimPrefix(first, directivePrefix))
			if i, ok := r.ForName(name); ok {
				return i, nil
			}
			return nil, fmt.Errorf("loopruntime/lang: no interpreter registered for directive %q", name)
		}
	}
	if idx := strings.LastIndexByte(filename, '.'); idx >= 0 {
		if i, ok := r.ForExtension(filename[idx+1:]); ok {
			return i, nil
		}
	}
	return nil, fmt.Errorf("loopruntime/lang: could not resolve an interpreter for %q", filename)
}
