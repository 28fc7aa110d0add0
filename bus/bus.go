// Package bus implements the cross-thread event bus: a bounded,
// single-consumer ring of typed events that carries state changes from
// worker goroutines (network tempo callbacks, playback completion, beat
// boundaries, user timers) into the main loop for dispatch.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Capacity is the fixed ring size. One slot is always kept open so that
// head == tail unambiguously means empty.
const Capacity = 256

// MaxHandlers is the number of distinct event kinds a Bus can route (one
// handler per kind).
const MaxHandlers = 16

// CustomTagSize is the size in bytes of a Custom event's tag, including
// the terminating NUL (15 usable bytes).
const CustomTagSize = 16

// ErrFull is returned by Push when the ring has no room for another event.
var ErrFull = errors.New("loopruntime/bus: full")

// Kind identifies the variant carried by a BusEvent.
type Kind int

const (
	KindLangCallback Kind = iota
	KindLinkPeers
	KindLinkTempo
	KindLinkTransport
	KindTimer
	KindBeatBoundary
	KindCustom

	numKinds
)

// LangCallbackData is the payload of a LangCallback event.
type LangCallbackData struct {
	SlotID int
	Status int
}

// LinkPeersData is the payload of a LinkPeers event.
type LinkPeersData struct {
	Count int
}

// LinkTempoData is the payload of a LinkTempo event.
type LinkTempoData struct {
	BPM float64
}

// LinkTransportData is the payload of a LinkTransport event.
type LinkTransportData struct {
	Playing bool
}

// TimerData is the payload of a Timer event.
type TimerData struct {
	ID       int
	UserData any
}

// BeatBoundaryData is the payload of a BeatBoundary event.
type BeatBoundaryData struct {
	Beat     float64
	Quantum  int
	BufferID int
}

// CustomData is the payload of a Custom event. Payload is heap-allocated
// by PushCustom when Len > 0 and is the only variant that owns memory the
// consumer must release (handled automatically by DispatchAll/Pop).
type CustomData struct {
	Tag     [CustomTagSize]byte
	Payload []byte
	Len     int
}

// BusEvent is the tagged union carried through the bus. Exactly one of the
// *Data fields is meaningful, selected by Kind.
type BusEvent struct {
	Kind      Kind
	Timestamp time.Time

	LangCallback  LangCallbackData
	LinkPeers     LinkPeersData
	LinkTempo     LinkTempoData
	LinkTransport LinkTransportData
	Timer         TimerData
	BeatBoundary  BeatBoundaryData
	Custom        CustomData
}

// Handler is invoked by DispatchAll/dispatch for one event.
type Handler func(ctx any, evt BusEvent)

// Bus is a bounded, multi-producer single-consumer ring of BusEvent.
// Producers take mu to update tail; the consumer reads head without mu,
// using atomic loads/stores, since only the consumer ever mutates head.
type Bus struct {
	mu   sync.Mutex
	ring [Capacity]BusEvent
	head atomic.Uint64 // consumer-owned
	tail atomic.Uint64 // producer-owned, mutated under mu

	wake chan struct{} // edge-triggered: non-blocking send, buffered 1

	handlersMu sync.Mutex
	handlers   [numKinds]Handler
}

// New creates an empty Bus with its wake handle ready.
func New() *Bus {
	return &Bus{wake: make(chan struct{}, 1)}
}

func idx(n uint64) uint64 { return n % Capacity }

// Wake returns the bus's shared wake channel. A receive on it indicates at
// least one push has occurred since the channel was last drained; many
// pushes between drains collapse to at most one pending wake (edge
// triggered), so the consumer must not assume one wake equals one event.
func (b *Bus) Wake() <-chan struct{} { return b.wake }

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Push copies evt by value into the ring. It stamps Timestamp from the
// monotonic clock if the caller left it zero. Returns ErrFull if the ring
// is at capacity (one slot is always kept open). Never blocks beyond the
// short internal mutex.
func (b *Bus) Push(evt BusEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	head := b.head.Load()
	tail := b.tail.Load()
	if idx(tail+1) == idx(head) {
		return ErrFull
	}

	b.ring[idx(tail)] = evt
	b.tail.Store(tail + 1)
	b.signal()
	return nil
}

// PushLangCallback pushes a LangCallback event.
func (b *Bus) PushLangCallback(slotID, status int) error {
	return b.Push(BusEvent{Kind: KindLangCallback, LangCallback: LangCallbackData{SlotID: slotID, Status: status}})
}

// PushLinkPeers pushes a LinkPeers event.
func (b *Bus) PushLinkPeers(count int) error {
	return b.Push(BusEvent{Kind: KindLinkPeers, LinkPeers: LinkPeersData{Count: count}})
}

// PushLinkTempo pushes a LinkTempo event.
func (b *Bus) PushLinkTempo(bpm float64) error {
	return b.Push(BusEvent{Kind: KindLinkTempo, LinkTempo: LinkTempoData{BPM: bpm}})
}

// PushLinkTransport pushes a LinkTransport event.
func (b *Bus) PushLinkTransport(playing bool) error {
	return b.Push(BusEvent{Kind: KindLinkTransport, LinkTransport: LinkTransportData{Playing: playing}})
}

// PushBeat pushes a BeatBoundary event.
func (b *Bus) PushBeat(beat float64, quantum, bufferID int) error {
	return b.Push(BusEvent{Kind: KindBeatBoundary, BeatBoundary: BeatBoundaryData{Beat: beat, Quantum: quantum, BufferID: bufferID}})
}

// PushTimer pushes a Timer event.
func (b *Bus) PushTimer(id int, userdata any) error {
	return b.Push(BusEvent{Kind: KindTimer, Timer: TimerData{ID: id, UserData: userdata}})
}

// PushCustom pushes a Custom event. If len(data) > 0 the payload is copied
// to the heap; if the push fails, the copy is simply discarded (never
// referenced by the ring).
func (b *Bus) PushCustom(tag string, data []byte) error {
	var cd CustomData
	n := copy(cd.Tag[:CustomTagSize-1], tag)
	cd.Tag[n] = 0
	if len(data) > 0 {
		cd.Payload = append([]byte(nil), data...)
		cd.Len = len(data)
	}
	return b.Push(BusEvent{Kind: KindCustom, Custom: cd})
}

// Peek copies the event at the head of the ring into out without
// advancing. Returns false if the bus is empty.
func (b *Bus) Peek(out *BusEvent) bool {
	head := b.head.Load()
	tail := b.tail.Load()
	if head == tail {
		return false
	}
	*out = b.ring[idx(head)]
	return true
}

// Poll is Peek followed by an advance: it copies the head event into out
// and removes it from the ring. Returns false if the bus is empty.
func (b *Bus) Poll(out *BusEvent) bool {
	if !b.Peek(out) {
		return false
	}
	b.head.Store(b.head.Load() + 1)
	return true
}

// Pop advances past the head event, releasing any Custom payload it
// carried. It is a no-op if the bus is empty.
func (b *Bus) Pop() {
	var evt BusEvent
	if !b.Poll(&evt) {
		return
	}
	releasePayload(&evt)
}

func releasePayload(evt *BusEvent) {
	if evt.Kind == KindCustom {
		evt.Custom.Payload = nil
	}
}

// Count returns the number of events currently queued.
func (b *Bus) Count() int {
	return int(b.tail.Load() - b.head.Load())
}

// IsEmpty reports whether the bus has no queued events.
func (b *Bus) IsEmpty() bool { return b.Count() == 0 }

// SetHandler installs the dispatcher for one event kind. Main-thread only.
func (b *Bus) SetHandler(kind Kind, h Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[kind] = h
}

// DispatchAll drains the bus, invoking the installed handler (if any) for
// each event in push order, then releasing any heap payload. Returns the
// number of events dispatched.
func (b *Bus) DispatchAll(ctx any) int {
	n := 0
	var evt BusEvent
	for b.Poll(&evt) {
		b.handlersMu.Lock()
		h := b.handlers[evt.Kind]
		b.handlersMu.Unlock()
		if h != nil {
			h(ctx, evt)
		}
		releasePayload(&evt)
		n++
	}
	return n
}
