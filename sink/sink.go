// Package sink defines the audio/MIDI output endpoint interface the
// playback engine writes to. Concrete sinks (fluidsynth, meltysynth,
// midiport) live in subpackages; the engine only ever depends on this
// interface.
package sink

// Sink accepts note-on/off, CC, program, and panic calls from the
// playback engine. Channel numbering is 0..15; interpreters using 1..16
// must translate before building a Schedule.
type Sink interface {
	SendNoteOn(channel, pitch, velocity uint8) error
	SendNoteOff(channel, pitch uint8) error
	SendCC(channel, cc, value uint8) error
	SendProgram(channel, program uint8) error

	// SendPanic is equivalent to sending a note-off for every
	// (channel, pitch) the sink currently believes is on.
	SendPanic() error

	// Feature flags the engine consults before Play: at least one must
	// be true for a sink to be considered usable.
	MIDIOutOpen() bool
	TSFEnabled() bool
	CsoundEnabled() bool
}
