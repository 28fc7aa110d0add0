package btml

import (
	"strings"

	"github.com/shakfu/loopruntime/event"
)

// ticksPerBar assumes 4/4 time: 480 ticks per quarter note * 4.
const ticksPerBar = uint32(4 * event.TicksPerQuarter)

// chordChannel/bassChannel/drumChannel mirror the channel assignment in
// ako-backing-tracks/midi.GenerateFromTrack: 0 for chords, 1 for bass, 9
// for the General MIDI drum kit.
const (
	chordChannel = 0
	bassChannel  = 1
	drumChannel  = 9
)

const (
	chordProgram = 0  // acoustic grand piano
	bassProgram  = 33 // fingered bass
)

// compile turns a parsed track into a tick-timeline Schedule: a NoteOn/
// NoteOff pair for every chord tone struck by the rhythm pattern, for
// every bass note, for every drum hit, and (if melody.enabled) for every
// improvised melody note. Ported from
// ako-backing-tracks/midi.GenerateFromTrack, which did the same assembly
// into an smf.SMF; here the destination is an event.Schedule consumed
// directly by playback.Engine instead of a file on disk.
func compile(t *track) (*event.Schedule, error) {
	chords := t.Progression.chords()
	var events []event.Event

	events = append(events, event.Event{Tick: 0, Kind: event.Program, Channel: chordChannel, Data1: chordProgram})
	events = append(events, generateRhythm(chords, t.Rhythm)...)

	if t.Bass != nil {
		events = append(events, event.Event{Tick: 0, Kind: event.Program, Channel: bassChannel, Data1: bassProgram})
		events = append(events, generateBass(chords, t.Bass)...)
	}
	if t.Drums != nil {
		events = append(events, generateDrums(t.Progression.totalBars(), t.Drums)...)
	}
	if t.Melody != nil && t.Melody.Enabled {
		events = append(events, generateMelody(chords, t.Info.Key, t.Info.Style, t.Melody)...)
	}

	tempo := float64(t.Info.Tempo)
	if tempo <= 0 {
		tempo = event.DefaultTempo
	}
	sched := &event.Schedule{Events: events, UseTicks: true, InitialTempo: tempo}
	event.SortForTimeline(sched.Events, true)
	return sched, nil
}

func noteOnOff(tick uint32, channel, pitch, velocity uint8, durationTicks uint32) []event.Event {
	return []event.Event{
		{Tick: tick, Kind: event.NoteOn, Channel: channel, Data1: pitch, Data2: velocity},
		{Tick: tick + durationTicks, Kind: event.NoteOff, Channel: channel, Data1: pitch},
	}
}

// generateRhythm strikes the chord voicing once per rhythmic subdivision
// for each chord's duration. style selects the subdivision: "whole",
// "half", "quarter" (default), or "eighth"; an explicit custom pattern of
// D/U/./x characters is not carried over from the original (it required
// a strum-direction-aware guitar voicing model tied to tablature display,
// dropped along with display/), but the quarter/eighth/whole/half
// subdivisions, its main rhythmic vocabulary, are preserved.
func generateRhythm(chords []chord, cfg *rhythmConfig) []event.Event {
	style := "quarter"
	if cfg != nil && cfg.Style != "" {
		style = strings.ToLower(cfg.Style)
	}
	subdivisionsPerBar := map[string]int{"whole": 1, "half": 2, "quarter": 4, "eighth": 8}[style]
	if subdivisionsPerBar == 0 {
		subdivisionsPerBar = 4
	}
	step := ticksPerBar / uint32(subdivisionsPerBar)

	var events []event.Event
	var tick uint32
	for _, c := range chords {
		voicing := chordVoicing(c.Symbol)
		barTicks := uint32(c.Bars * float64(ticksPerBar))
		for t := uint32(0); t < barTicks; t += step {
			hitTick := tick + t
			dur := step - step/10 // slight detach so consecutive hits aren't legato
			for _, note := range voicing {
				events = append(events, noteOnOff(hitTick, chordChannel, note, 72, dur)...)
			}
		}
		tick += barTicks
	}
	return events
}

// generateBass walks the chord roots. style "walking" plays root, third,
// fifth, third on the four beats of each bar (chords shorter than a bar
// fall back to a held root); any other style (default "root") holds the
// root for the chord's whole duration.
func generateBass(chords []chord, cfg *bassConfig) []event.Event {
	style := "root"
	if cfg != nil && cfg.Style != "" {
		style = strings.ToLower(cfg.Style)
	}

	var events []event.Event
	var tick uint32
	for _, c := range chords {
		root := uint8(chordRoot(c.Symbol) + 36) // octave 2
		barTicks := uint32(c.Bars * float64(ticksPerBar))

		if style == "walking" && barTicks >= ticksPerBar {
			beat := ticksPerBar / 4
			third := root + thirdInterval(c.Symbol)
			fifth := root + 7
			notes := []uint8{root, third, fifth, third}
			for i := uint32(0); i < 4; i++ {
				events = append(events, noteOnOff(tick+i*beat, bassChannel, notes[i], 80, beat-beat/10)...)
			}
			for t := ticksPerBar; t < barTicks; t += ticksPerBar {
				for i := uint32(0); i < 4; i++ {
					events = append(events, noteOnOff(tick+t+i*beat, bassChannel, notes[i], 80, beat-beat/10)...)
				}
			}
		} else {
			events = append(events, noteOnOff(tick, bassChannel, root, 85, barTicks-barTicks/20)...)
		}
		tick += barTicks
	}
	return events
}

func thirdInterval(symbol string) uint8 {
	if chordQuality(symbol) == "m" || chordQuality(symbol) == "m7" {
		return 3
	}
	return 4
}

// generateDrums produces a simple two-way beat: kick on 1 and 3, snare on
// 2 and 4, closed hihat on every eighth note. This is the common-
// denominator pattern across ako-backing-tracks/midi/drums.go's many
// named presets (rockBeat, fourOnFloor, etc.); the full per-genre preset
// bank (shuffle, jazz swing, reggae one-drop, ska, trap hi-hat rolls, ...)
// is not reproduced here, only its shared rock/pop backbone.
func generateDrums(totalBars int, cfg *drumsConfig) []event.Event {
	const (
		kick  = 36
		snare = 38
		hihat = 42
	)
	velocity := uint8(100)
	if cfg != nil && cfg.Intensity > 0 {
		velocity = uint8(60 + cfg.Intensity*67)
	}

	var events []event.Event
	beat := ticksPerBar / 4
	eighth := beat / 2
	for bar := 0; bar < totalBars; bar++ {
		barStart := uint32(bar) * ticksPerBar
		events = append(events, noteOnOff(barStart, drumChannel, kick, velocity, 10)...)
		events = append(events, noteOnOff(barStart+2*beat, drumChannel, kick, velocity, 10)...)
		events = append(events, noteOnOff(barStart+beat, drumChannel, snare, velocity, 10)...)
		events = append(events, noteOnOff(barStart+3*beat, drumChannel, snare, velocity, 10)...)
		for e := uint32(0); e < 8; e++ {
			events = append(events, noteOnOff(barStart+e*eighth, drumChannel, hihat, velocity-20, 10)...)
		}
	}
	return events
}

// generateMelody plays one note per kept beat, stepping upward through
// the style's scale notes in order and wrapping around; the chords only
// set how many beats there are, and chord tones are not favored. Ported
// (much simplified) from ako-backing-tracks/midi.GenerateMelody, without
// its chord-tone selection or call/response blues-head phrase structure.
func generateMelody(chords []chord, key, style string, cfg *melodyConfig) []event.Event {
	octave := 4
	if cfg.Octave > 0 {
		octave = cfg.Octave
	}
	baseNote := 12 * (octave + 1) // MIDI octave numbering: C4 = 60
	density := cfg.Density
	if density <= 0 {
		density = 0.5
	}

	sc := scaleForStyle(key, style)
	notes := sc.notesInRange(baseNote-6, baseNote+18)
	if len(notes) == 0 {
		return nil
	}

	var events []event.Event
	var tick uint32
	idx := 0
	beat := ticksPerBar / 4
	for _, c := range chords {
		barTicks := uint32(c.Bars * float64(ticksPerBar))
		for t := uint32(0); t < barTicks; t += beat {
			if skipBeat(density, t, beat) {
				continue
			}
			note := notes[idx%len(notes)]
			idx++
			events = append(events, noteOnOff(tick+t, 2, uint8(note), 70, beat-beat/8)...)
		}
		tick += barTicks
	}
	return events
}

// skipBeat deterministically thins notes to approximate density without
// pulling in a random source: of every four beats from the chord's start,
// the first floor(density*4) are kept, at least one (e.g. density 0.5
// keeps the first two beats of each four).
func skipBeat(density float64, t, beat uint32) bool {
	if density >= 1 {
		return false
	}
	beatIndex := t / beat
	keep := uint32(density * 4) // out of every 4 beats
	if keep == 0 {
		keep = 1
	}
	return beatIndex%4 >= keep
}
