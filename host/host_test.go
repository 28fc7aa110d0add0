package host

import "testing"

type fakeSink struct{ midiOpen bool }

func (f *fakeSink) SendNoteOn(channel, pitch, velocity uint8) error { return nil }
func (f *fakeSink) SendNoteOff(channel, pitch uint8) error          { return nil }
func (f *fakeSink) SendCC(channel, cc, value uint8) error           { return nil }
func (f *fakeSink) SendProgram(channel, program uint8) error        { return nil }
func (f *fakeSink) SendPanic() error                                { return nil }
func (f *fakeSink) MIDIOutOpen() bool                                { return f.midiOpen }
func (f *fakeSink) TSFEnabled() bool                                 { return false }
func (f *fakeSink) CsoundEnabled() bool                              { return false }

const minimalTrack = `
track:
  title: Unit Test Song
  key: C
  tempo: 100
chord_progression:
  pattern: C G Am F
rhythm:
  style: quarter
`

func TestCompileResolvesBTMLByExtension(t *testing.T) {
	h, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Cleanup()

	sched, err := h.Compile("song.btml", minimalTrack)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := sched.Validate(); err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}
}

func TestCompileUnknownExtensionFails(t *testing.T) {
	h, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Cleanup()

	if _, err := h.Compile("song.xyz", minimalTrack); err == nil {
		t.Fatal("expected error resolving an unknown extension with no #lang: directive")
	}
}

func TestPlayWithoutSinkFails(t *testing.T) {
	h, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Cleanup()

	if _, err := h.Play("song.btml", minimalTrack); err == nil {
		t.Fatal("expected error playing with no sink configured")
	}
}

func TestPlayWithSinkStartsASlot(t *testing.T) {
	h, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Cleanup()

	h.SetSink(&fakeSink{midiOpen: true})
	id, err := h.Play("song.btml", minimalTrack)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if id < 0 {
		t.Fatalf("expected a valid slot id, got %d", id)
	}
	h.Playback.StopAll()
	h.Playback.WaitAll(2000)
}

func TestRunAndStop(t *testing.T) {
	h, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer h.Cleanup()

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	h.Stop()
	<-done
}
