// Package tempo provides TempoSync, a process-wide singleton that
// negotiates a shared tempo/beat/phase/transport with peers on the local
// network and publishes change notifications through the event bus.
//
// The network protocol itself (see peerclock.go) is an adapter: no
// Ableton-Link Go binding exists in this lineage's dependency corpus, so
// peer discovery and clock negotiation are implemented as a small UDP
// multicast gossip protocol. Sync's public surface never leaks that
// detail, matching spec's "compatibility concerns live in the adapter."
package tempo

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shakfu/loopruntime/bus"
)

const (
	minTempo = 20.0
	maxTempo = 999.0

	// DefaultQuantum is the beat subdivision used when a caller passes
	// quantum <= 0.
	DefaultQuantum = 4
)

// ErrAlreadyInitialized is returned by Init when called twice.
var ErrAlreadyInitialized = errors.New("loopruntime/tempo: already initialized")

// PeersCallback, TempoCallback and TransportCallback are the subscriber
// shapes invoked from CheckCallbacks, on the main thread only.
type (
	PeersCallback     func(numPeers int, userdata any)
	TempoCallback     func(bpm float64, userdata any)
	TransportCallback func(playing bool, userdata any)
)

type subscriber[F any] struct {
	fn       F
	userdata any
	set      bool
}

// Sync is the TempoSync singleton. Create one with New, share it, and call
// Init before use; all other operations are safe pre-Init and return
// benign defaults (never abort, per spec's Uninitialized error taxonomy).
type Sync struct {
	bus *bus.Bus
	log *slog.Logger

	initDone bool

	mu sync.Mutex

	enabled             bool
	startStopSyncOn     bool
	quantum             int
	tempo               float64
	playing             bool
	peerCount           int

	peersPending     bool
	tempoPending     bool
	transportPending bool
	pendingPeers     int
	pendingTempo     float64
	pendingPlaying   bool

	peersCB     subscriber[PeersCallback]
	tempoCB     subscriber[TempoCallback]
	transportCB subscriber[TransportCallback]

	clock *peerClock
}

// New creates an uninitialized Sync bound to bus b (for publishing change
// notifications) and logger lg (nil-safe; defaults to slog.Default()).
func New(b *bus.Bus, lg *slog.Logger) *Sync {
	if lg == nil {
		lg = slog.Default()
	}
	return &Sync{bus: b, log: lg, quantum: DefaultQuantum}
}

// Init starts the network session at initialBPM (clamped) and registers
// the internal network callbacks that only set pending flags/values under
// the mutex. Fails if already initialized.
func (s *Sync) Init(initialBPM float64) error {
	s.mu.Lock()
	if s.initDone {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.tempo = clamp(initialBPM)
	s.initDone = true
	s.mu.Unlock()

	s.clock = newPeerClock(s.log)
	s.clock.tempo = clamp(initialBPM)
	s.clock.onPeers = func(n int) { s.notePeers(n) }
	s.clock.onTempo = func(bpm float64) { s.noteTempo(bpm) }
	s.clock.onTransport = func(playing bool) { s.noteTransport(playing) }
	return s.clock.start()
}

// Cleanup disables networking, releases handles, and clears subscribers.
func (s *Sync) Cleanup() {
	s.mu.Lock()
	s.enabled = false
	s.initDone = false
	s.peersCB = subscriber[PeersCallback]{}
	s.tempoCB = subscriber[TempoCallback]{}
	s.transportCB = subscriber[TransportCallback]{}
	clock := s.clock
	s.clock = nil
	s.mu.Unlock()

	if clock != nil {
		clock.stop()
	}
}

// Enable sets the enabled flag read by IsEnabled and EffectiveTempo. The
// network clock started by Init sends and receives beacons whether or
// not the flag is set.
func (s *Sync) Enable(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = on
}

// IsEnabled reports whether tempo-sync is enabled.
func (s *Sync) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// EnableStartStopSync toggles whether local start/stop propagates to peers.
func (s *Sync) EnableStartStopSync(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startStopSyncOn = on
}

// IsStartStopSyncEnabled reports the start-stop-sync flag.
func (s *Sync) IsStartStopSyncEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startStopSyncOn
}

// GetTempo returns the last-known shared tempo in BPM. Returns 0 before
// Init, the benign uninitialized value.
func (s *Sync) GetTempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initDone {
		return 0
	}
	return s.tempo
}

// SetTempo sets and propagates the shared tempo, clamped to [20, 999].
func (s *Sync) SetTempo(bpm float64) {
	s.mu.Lock()
	s.tempo = clamp(bpm)
	clock := s.clock
	initDone := s.initDone
	tempo := s.tempo
	s.mu.Unlock()
	if initDone && clock != nil {
		clock.publishTempo(tempo)
	}
}

// EffectiveTempo returns GetTempo() if Sync is initialized and enabled,
// otherwise fallback.
func (s *Sync) EffectiveTempo(fallback float64) float64 {
	s.mu.Lock()
	initDone, enabled, tempo := s.initDone, s.enabled, s.tempo
	s.mu.Unlock()
	if initDone && enabled {
		return tempo
	}
	return fallback
}

// GetBeat captures session state and reads the current beat position
// against the network clock's "now", using quantum (<=0 replaced with 4)
// purely to select a session read; the return value is the absolute beat,
// not reduced modulo quantum.
func (s *Sync) GetBeat(quantum int) float64 {
	quantum = normalizeQuantum(quantum)
	s.mu.Lock()
	clock := s.clock
	initDone := s.initDone
	s.mu.Unlock()
	if !initDone || clock == nil {
		return 0
	}
	return clock.beatAt(time.Now(), quantum)
}

// GetPhase returns the fractional position within a quantum, in
// [0, quantum).
func (s *Sync) GetPhase(quantum int) float64 {
	quantum = normalizeQuantum(quantum)
	beat := s.GetBeat(quantum)
	q := float64(quantum)
	phase := beat - q*float64(int64(beat/q))
	if phase < 0 {
		phase += q
	}
	return phase
}

// IsPlaying reports the last-known shared transport state.
func (s *Sync) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// SetPlaying sets and propagates the shared transport state.
func (s *Sync) SetPlaying(playing bool) {
	s.mu.Lock()
	s.playing = playing
	clock := s.clock
	initDone := s.initDone
	s.mu.Unlock()
	if initDone && clock != nil {
		clock.publishTransport(playing)
	}
}

// NumPeers returns the last-known peer count.
func (s *Sync) NumPeers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerCount
}

// SetPeersCallback installs the subscriber invoked on peer-count changes.
func (s *Sync) SetPeersCallback(fn PeersCallback, userdata any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peersCB = subscriber[PeersCallback]{fn: fn, userdata: userdata, set: fn != nil}
}

// SetTempoCallback installs the subscriber invoked on tempo changes.
func (s *Sync) SetTempoCallback(fn TempoCallback, userdata any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempoCB = subscriber[TempoCallback]{fn: fn, userdata: userdata, set: fn != nil}
}

// SetTransportCallback installs the subscriber invoked on transport
// changes.
func (s *Sync) SetTransportCallback(fn TransportCallback, userdata any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportCB = subscriber[TransportCallback]{fn: fn, userdata: userdata, set: fn != nil}
}

// notePeers/noteTempo/noteTransport run on the network goroutine: they
// only record pending state under the mutex and push a bus event. They
// never invoke subscriber callbacks directly. notePeers and noteTempo
// ignore a value equal to the last-known one.
func (s *Sync) notePeers(n int) {
	s.mu.Lock()
	if n == s.peerCount {
		s.mu.Unlock()
		return
	}
	s.peersPending = true
	s.pendingPeers = n
	s.peerCount = n
	s.mu.Unlock()
	if s.bus != nil {
		_ = s.bus.PushLinkPeers(n)
	}
}

func (s *Sync) noteTempo(bpm float64) {
	bpm = clamp(bpm)
	s.mu.Lock()
	if bpm == s.tempo {
		s.mu.Unlock()
		return
	}
	s.tempoPending = true
	s.pendingTempo = bpm
	s.tempo = bpm
	s.mu.Unlock()
	if s.bus != nil {
		_ = s.bus.PushLinkTempo(bpm)
	}
}

func (s *Sync) noteTransport(playing bool) {
	s.mu.Lock()
	s.transportPending = true
	s.pendingPlaying = playing
	s.playing = playing
	s.mu.Unlock()
	if s.bus != nil {
		_ = s.bus.PushLinkTransport(playing)
	}
}

// CheckCallbacks is main-thread-only. For each pending flag it captures
// the value under lock, clears the flag, releases the lock, and invokes
// the subscriber outside the lock; repeats independently per flag so a
// slow subscriber for one flag never blocks delivery of another.
func (s *Sync) CheckCallbacks() {
	if peers, ok := s.takePeers(); ok {
		s.mu.Lock()
		cb := s.peersCB
		s.mu.Unlock()
		if cb.set {
			cb.fn(peers, cb.userdata)
		}
	}
	if tempo, ok := s.takeTempo(); ok {
		s.mu.Lock()
		cb := s.tempoCB
		s.mu.Unlock()
		if cb.set {
			cb.fn(tempo, cb.userdata)
		}
	}
	if playing, ok := s.takeTransport(); ok {
		s.mu.Lock()
		cb := s.transportCB
		s.mu.Unlock()
		if cb.set {
			cb.fn(playing, cb.userdata)
		}
	}
}

func (s *Sync) takePeers() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.peersPending {
		return 0, false
	}
	s.peersPending = false
	return s.pendingPeers, true
}

func (s *Sync) takeTempo() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tempoPending {
		return 0, false
	}
	s.tempoPending = false
	return s.pendingTempo, true
}

func (s *Sync) takeTransport() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transportPending {
		return false, false
	}
	s.transportPending = false
	return s.pendingPlaying, true
}

func clamp(bpm float64) float64 {
	if bpm < minTempo {
		return minTempo
	}
	if bpm > maxTempo {
		return maxTempo
	}
	return bpm
}

func normalizeQuantum(q int) int {
	if q <= 0 {
		return DefaultQuantum
	}
	return q
}
