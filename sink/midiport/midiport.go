// Package midiport implements sink.Sink against a live, physical or
// virtual MIDI output port via gitlab.com/gomidi/midi/v2.
//
// New to this repo: the teacher never wrote to a live port (it only ever
// drove FluidSynth or rendered files), but gitlab.com/gomidi/midi/v2 is
// already part of the stack (zurustar-son-et uses it for smf parsing and
// message decoding), so this sink exercises the send half of the same
// library the rest of the codebase uses for the receive half.
package midiport

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Sink sends channel-voice messages to an open MIDI output port.
type Sink struct {
	portName string
	send     func(msg midi.Message) error
	close    func()
}

// Open finds the first output port whose name contains portName
// (case-sensitive substring match, per midi.FindOutPort) and opens a
// sender against it.
func Open(portName string) (*Sink, error) {
	out, err := midi.FindOutPort(portName)
	if err != nil {
		return nil, fmt.Errorf("loopruntime/sink/midiport: find port %q: %w", portName, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("loopruntime/sink/midiport: open port %q: %w", portName, err)
	}
	return &Sink{
		portName: portName,
		send:     send,
		close:    func() { _ = out.Close() },
	}, nil
}

func (s *Sink) SendNoteOn(channel, pitch, velocity uint8) error {
	return s.send(midi.NoteOn(channel, pitch, velocity))
}

func (s *Sink) SendNoteOff(channel, pitch uint8) error {
	return s.send(midi.NoteOff(channel, pitch))
}

func (s *Sink) SendCC(channel, cc, value uint8) error {
	return s.send(midi.ControlChange(channel, cc, value))
}

func (s *Sink) SendProgram(channel, program uint8) error {
	return s.send(midi.ProgramChange(channel, program))
}

// SendPanic sends an all-notes-off CC (123) and an all-sound-off CC (120)
// on every channel, the standard MIDI panic sequence.
func (s *Sink) SendPanic() error {
	for ch := uint8(0); ch < 16; ch++ {
		if err := s.send(midi.ControlChange(ch, 123, 0)); err != nil {
			return err
		}
		if err := s.send(midi.ControlChange(ch, 120, 0)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) MIDIOutOpen() bool   { return true }
func (s *Sink) TSFEnabled() bool    { return false }
func (s *Sink) CsoundEnabled() bool { return false }

// Close releases the underlying output port.
func (s *Sink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
