package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/shakfu/loopruntime/bus"
	"github.com/shakfu/loopruntime/event"
)

type call struct {
	kind    string
	channel uint8
	a, b    uint8
}

type fakeSink struct {
	mu    sync.Mutex
	calls []call

	midiOpen bool
}

func newFakeSink() *fakeSink { return &fakeSink{midiOpen: true} }

func (f *fakeSink) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeSink) SendNoteOn(channel, pitch, velocity uint8) error {
	f.record(call{"on", channel, pitch, velocity})
	return nil
}
func (f *fakeSink) SendNoteOff(channel, pitch uint8) error {
	f.record(call{"off", channel, pitch, 0})
	return nil
}
func (f *fakeSink) SendCC(channel, cc, value uint8) error {
	f.record(call{"cc", channel, cc, value})
	return nil
}
func (f *fakeSink) SendProgram(channel, program uint8) error {
	f.record(call{"prog", channel, program, 0})
	return nil
}
func (f *fakeSink) SendPanic() error { return nil }

func (f *fakeSink) MIDIOutOpen() bool   { return f.midiOpen }
func (f *fakeSink) TSFEnabled() bool    { return false }
func (f *fakeSink) CsoundEnabled() bool { return false }

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func shortSchedule() *event.Schedule {
	return &event.Schedule{
		UseTicks:     true,
		InitialTempo: 120,
		Events: []event.Event{
			{Tick: 0, Kind: event.NoteOn, Channel: 0, Data1: 60, Data2: 100, DurationTicks: 10},
			{Tick: 10, Kind: event.NoteOff, Channel: 0, Data1: 60},
		},
	}
}

func TestPlayRejectsEmptySchedule(t *testing.T) {
	e := New(bus.New(), nil)
	e.Init()
	defer e.Cleanup()

	if _, err := e.Play(&event.Schedule{}, newFakeSink()); err != event.ErrEmptySchedule {
		t.Fatalf("expected ErrEmptySchedule, got %v", err)
	}
}

func TestPlayRejectsUnavailableSink(t *testing.T) {
	e := New(bus.New(), nil)
	e.Init()
	defer e.Cleanup()

	snk := newFakeSink()
	snk.midiOpen = false
	if _, err := e.Play(shortSchedule(), snk); err != ErrSinkUnavailable {
		t.Fatalf("expected ErrSinkUnavailable, got %v", err)
	}
}

func TestPlayRunsEventsAndReachesIdle(t *testing.T) {
	e := New(bus.New(), nil)
	e.Init()
	defer e.Cleanup()

	snk := newFakeSink()
	id, err := e.Play(shortSchedule(), snk)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !e.Wait(id, 2000) {
		t.Fatal("expected slot to reach idle within timeout")
	}
	if snk.count() == 0 {
		t.Fatal("expected at least one sink call")
	}
}

func TestPlayFillsToMaxSlots(t *testing.T) {
	e := New(bus.New(), nil)
	e.Init()
	defer e.Cleanup()

	// Use a schedule that won't finish quickly so slots stay occupied.
	longSched := &event.Schedule{
		UseTicks:     true,
		InitialTempo: 120,
		Events: []event.Event{
			{Tick: 0, Kind: event.NoteOn, Channel: 0, Data1: 60, Data2: 100},
			{Tick: 480 * 1000, Kind: event.NoteOff, Channel: 0, Data1: 60},
		},
	}

	for i := 0; i < MaxSlots; i++ {
		if _, err := e.Play(longSched.Clone(), newFakeSink()); err != nil {
			t.Fatalf("play %d: %v", i, err)
		}
	}
	if _, err := e.Play(longSched.Clone(), newFakeSink()); err != ErrFull {
		t.Fatalf("expected ErrFull once MaxSlots is reached, got %v", err)
	}
	e.StopAll()
	if !e.WaitAll(2000) {
		t.Fatal("expected all slots to stop within timeout")
	}
}

func TestStopEndsPlaybackEarly(t *testing.T) {
	e := New(bus.New(), nil)
	e.Init()
	defer e.Cleanup()

	longSched := &event.Schedule{
		UseTicks:     true,
		InitialTempo: 120,
		Events: []event.Event{
			{Tick: 0, Kind: event.NoteOn, Channel: 0, Data1: 60, Data2: 100},
			{Tick: 480 * 1000, Kind: event.NoteOff, Channel: 0, Data1: 60},
		},
	}
	id, err := e.Play(longSched, newFakeSink())
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := e.Stop(id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !e.Wait(id, 2000) {
		t.Fatal("expected slot to stop shortly after Stop")
	}
}

// TestMsNoteRoundTripScenario reproduces spec scenario S1: a single ms-mode
// Note at time=0 with a 250ms duration. The sink must see NoteOn
// immediately and a matching NoteOff between 240 and 280 ms later, with the
// slot going idle shortly after.
func TestMsNoteRoundTripScenario(t *testing.T) {
	e := New(bus.New(), nil)
	e.Init()
	defer e.Cleanup()

	snk := newFakeSink()
	sched := &event.Schedule{
		UseTicks: false,
		Events: []event.Event{
			{TimeMs: 0, Kind: event.Note, Channel: 0, Data1: 60, Data2: 100, DurationMs: 250},
		},
	}

	start := time.Now()
	id, err := e.Play(sched, snk)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !e.Wait(id, 2000) {
		t.Fatal("expected slot to reach idle")
	}
	elapsed := time.Since(start)
	if elapsed < 240*time.Millisecond || elapsed > 330*time.Millisecond {
		t.Fatalf("expected note-off within [240,280]ms plus idle slack, got %v", elapsed)
	}

	snk.mu.Lock()
	defer snk.mu.Unlock()
	if len(snk.calls) != 2 || snk.calls[0].kind != "on" || snk.calls[1].kind != "off" {
		t.Fatalf("expected exactly one NoteOn then one NoteOff, got %+v", snk.calls)
	}
}

// TestStopClearsHeldNotesScenario reproduces spec scenario S4: stopping a
// slot mid-note must immediately flush a NoteOff for every still-held note,
// leaving note-on and note-off counts equal.
func TestStopClearsHeldNotesScenario(t *testing.T) {
	e := New(bus.New(), nil)
	e.Init()
	defer e.Cleanup()

	snk := newFakeSink()
	sched := &event.Schedule{
		UseTicks: false,
		Events: []event.Event{
			{TimeMs: 0, Kind: event.Note, Channel: 0, Data1: 60, Data2: 100, DurationMs: 250},
		},
	}
	id, err := e.Play(sched, snk)
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := e.Stop(id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !e.Wait(id, 2000) {
		t.Fatal("expected slot to go idle promptly after Stop")
	}

	snk.mu.Lock()
	defer snk.mu.Unlock()
	ons, offs := 0, 0
	for _, c := range snk.calls {
		switch c.kind {
		case "on":
			ons++
		case "off":
			offs++
		}
	}
	if ons != offs || ons != 1 {
		t.Fatalf("expected 1 note-on and 1 note-off, got %d on %d off", ons, offs)
	}
}

func TestIsSlotPlayingOutOfRangeIsFalse(t *testing.T) {
	e := New(bus.New(), nil)
	if e.IsSlotPlaying(-1) || e.IsSlotPlaying(MaxSlots) {
		t.Fatal("expected out-of-range slot ids to report not-playing")
	}
}

func TestStopInvalidSlotReturnsError(t *testing.T) {
	e := New(bus.New(), nil)
	if err := e.Stop(-1); err != ErrInvalidSlot {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if err := e.Stop(MaxSlots); err != ErrInvalidSlot {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
}
