// Package liveloop implements the per-buffer live-loop registry: it
// re-evaluates user code on beat-boundary crossings derived from the
// tempo-sync clock.
package liveloop

import (
	"errors"
	"sync"

	"github.com/shakfu/loopruntime/bus"
)

// Max is the fixed capacity of the live-loop table.
const Max = 32

// ErrFull is returned by Start when the table has no room for a new
// buffer entry.
var ErrFull = errors.New("loopruntime/liveloop: registry full")

// ErrInvalidBeats is returned by Start when beats <= 0.
var ErrInvalidBeats = errors.New("loopruntime/liveloop: beats must be > 0")

// BeatSource is the subset of tempo.Sync the registry needs: whether
// tempo-sync is enabled and the current beat at a given quantum. Modeled
// as an interface so liveloop does not import tempo, avoiding a cycle and
// keeping the registry testable with a fake clock.
type BeatSource interface {
	IsEnabled() bool
	GetBeat(quantum int) float64
}

type entry struct {
	bufferID     int
	active       bool
	beatInterval int
	lastBeat     float64
}

// Registry is the fixed live-loop table: at most one entry per buffer,
// compacted by swap-remove.
type Registry struct {
	mu          sync.Mutex
	entries     []entry
	initialized bool

	clock BeatSource
	bus   *bus.Bus

	// exists reports whether a buffer is still open; when tick() finds an
	// active entry whose buffer no longer exists, it removes the entry
	// rather than firing into it.
	exists func(bufferID int) bool
}

// New creates a Registry driven by clock and publishing BeatBoundary
// events onto b. exists (optional) lets the host report that a buffer has
// since been closed; if nil, buffers are assumed to always exist.
func New(clock BeatSource, b *bus.Bus, exists func(bufferID int) bool) *Registry {
	return &Registry{clock: clock, bus: b, exists: exists, initialized: true}
}

// Start begins (or updates) a loop on bufferID firing every beats beats.
// If an entry already exists for bufferID its interval is updated and it
// is marked active, reseeding lastBeat from the clock; otherwise a new
// entry is appended.
func (r *Registry) Start(bufferID int, beats int) error {
	if beats <= 0 {
		return ErrInvalidBeats
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	seed := 0.0
	if r.clock != nil {
		seed = r.clock.GetBeat(beats)
	}

	for i := range r.entries {
		if r.entries[i].bufferID == bufferID {
			r.entries[i].beatInterval = beats
			r.entries[i].active = true
			r.entries[i].lastBeat = seed
			return nil
		}
	}
	if len(r.entries) >= Max {
		return ErrFull
	}
	r.entries = append(r.entries, entry{bufferID: bufferID, active: true, beatInterval: beats, lastBeat: seed})
	return nil
}

// Stop removes bufferID's entry via swap-remove.
func (r *Registry) Stop(bufferID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(bufferID)
}

func (r *Registry) removeLocked(bufferID int) {
	for i := range r.entries {
		if r.entries[i].bufferID == bufferID {
			last := len(r.entries) - 1
			r.entries[i] = r.entries[last]
			r.entries = r.entries[:last]
			return
		}
	}
}

// IsActive reports whether bufferID currently has an active loop.
func (r *Registry) IsActive(bufferID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.bufferID == bufferID {
			return e.active
		}
	}
	return false
}

// GetInterval returns bufferID's beat interval, or 0 if it has no entry.
func (r *Registry) GetInterval(bufferID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.bufferID == bufferID {
			return e.beatInterval
		}
	}
	return 0
}

// Tick is a no-op unless the tempo-sync clock is enabled. For each active
// entry it computes the current beat at that entry's interval-as-quantum
// and fires a BeatBoundary event exactly when the integer cycle number
// (floor(beat/interval)) advances. Detection is by cycle number, not
// wall-clock time, so the loop tolerates variable tick cadence as long as
// ticks arrive faster than one interval's worth of beats.
func (r *Registry) Tick() {
	if r.clock == nil || !r.clock.IsEnabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < len(r.entries); i++ {
		e := &r.entries[i]
		if !e.active {
			continue
		}
		if r.exists != nil && !r.exists(e.bufferID) {
			last := len(r.entries) - 1
			r.entries[i] = r.entries[last]
			r.entries = r.entries[:last]
			i--
			continue
		}

		cur := r.clock.GetBeat(e.beatInterval)
		interval := float64(e.beatInterval)
		curCycle := cycleNumber(cur, interval)
		lastCycle := cycleNumber(e.lastBeat, interval)
		if curCycle > lastCycle {
			if r.bus != nil {
				_ = r.bus.PushBeat(cur, e.beatInterval, e.bufferID)
			}
		}
		e.lastBeat = cur
	}
}

func cycleNumber(beat, interval float64) int64 {
	if interval <= 0 {
		return 0
	}
	return int64(beat / interval)
}

// Shutdown clears every entry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
