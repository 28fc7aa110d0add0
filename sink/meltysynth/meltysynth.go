// Package meltysynth implements sink.Sink with a pure-Go, in-process
// synthesizer: no external process, no MIDI hardware, just a SoundFont
// rendered to audio samples fed through Ebiten's audio player.
//
// Grounded on zurustar-son-et/pkg/engine/midi_player.go: the
// meltysynth.Synthesizer + ebiten/v2/audio.Context/Player pairing, the
// io.Reader audio stream that renders float32 stereo into little-endian
// int16 PCM, and ProcessMidiMessage as the single entry point for all
// channel-voice messages are carried over; the gomidi/smf file-replay
// machinery (tempo maps, timeline sorting, tick generators) is dropped
// since this sink receives already-scheduled events directly from
// playback.Engine rather than replaying a standalone MIDI file.
package meltysynth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

// SampleRate is the fixed render rate, matching the teacher's constant.
const SampleRate = 44100

const (
	cmdNoteOff   = 0x80
	cmdNoteOn    = 0x90
	cmdCC        = 0xB0
	cmdProgram   = 0xC0
)

var (
	globalCtx   *audio.Context
	globalCtxMu sync.Mutex
)

func sharedContext() *audio.Context {
	globalCtxMu.Lock()
	defer globalCtxMu.Unlock()
	if globalCtx == nil {
		globalCtx = audio.NewContext(SampleRate)
	}
	return globalCtx
}

// Sink renders MIDI channel-voice messages through an in-process
// meltysynth synthesizer.
type Sink struct {
	synth  *meltysynth.Synthesizer
	player *audio.Player

	mu          sync.Mutex
	activeNotes map[noteKey]struct{}
}

type noteKey struct {
	channel uint8
	pitch   uint8
}

// New loads soundFontData and starts a continuously-rendering audio
// player against it.
func New(soundFontData []byte) (*Sink, error) {
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(soundFontData))
	if err != nil {
		return nil, fmt.Errorf("loopruntime/sink/meltysynth: parse soundfont: %w", err)
	}
	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("loopruntime/sink/meltysynth: create synthesizer: %w", err)
	}

	s := &Sink{synth: synth, activeNotes: make(map[noteKey]struct{})}

	player, err := sharedContext().NewPlayer(&renderStream{synth: synth})
	if err != nil {
		return nil, fmt.Errorf("loopruntime/sink/meltysynth: create player: %w", err)
	}
	s.player = player
	player.Play()
	return s, nil
}

// renderStream implements io.Reader, pulling stereo float32 samples from
// the synthesizer and packing them into little-endian int16 PCM.
type renderStream struct {
	synth *meltysynth.Synthesizer
}

func (r *renderStream) Read(p []byte) (int, error) {
	sampleCount := len(p) / 4
	if sampleCount == 0 {
		return 0, nil
	}
	left := make([]float32, sampleCount)
	right := make([]float32, sampleCount)
	r.synth.Render(left, right)
	for i := 0; i < sampleCount; i++ {
		binary.LittleEndian.PutUint16(p[i*4:], uint16(int16(clamp(left[i])*32767)))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(int16(clamp(right[i])*32767)))
	}
	return sampleCount * 4, nil
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func (s *Sink) SendNoteOn(channel, pitch, velocity uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeNotes[noteKey{channel, pitch}] = struct{}{}
	s.synth.ProcessMidiMessage(int32(channel), cmdNoteOn, int32(pitch), int32(velocity))
	return nil
}

func (s *Sink) SendNoteOff(channel, pitch uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeNotes, noteKey{channel, pitch})
	s.synth.ProcessMidiMessage(int32(channel), cmdNoteOff, int32(pitch), 0)
	return nil
}

func (s *Sink) SendCC(channel, cc, value uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synth.ProcessMidiMessage(int32(channel), cmdCC, int32(cc), int32(value))
	return nil
}

func (s *Sink) SendProgram(channel, program uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synth.ProcessMidiMessage(int32(channel), cmdProgram, int32(program), 0)
	return nil
}

func (s *Sink) SendPanic() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.activeNotes {
		s.synth.ProcessMidiMessage(int32(key.channel), cmdNoteOff, int32(key.pitch), 0)
	}
	s.activeNotes = make(map[noteKey]struct{})
	return nil
}

func (s *Sink) MIDIOutOpen() bool   { return false }
func (s *Sink) TSFEnabled() bool    { return true }
func (s *Sink) CsoundEnabled() bool { return false }

// Close stops the audio player.
func (s *Sink) Close() error {
	if s.player != nil {
		return s.player.Close()
	}
	return nil
}
