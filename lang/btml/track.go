package btml

import (
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// track is the parsed form of a .btml buffer, grounded on
// ako-backing-tracks/parser.Track: a YAML document describing a chord
// progression plus rhythm/bass/drums/melody generation settings. The
// progression controls (bars_per_chord, repeat) survive from the
// original; guitar-tablature-specific fields (capo, lyrics-per-bar) are
// dropped since this interpreter targets the playback engine, not a
// terminal tab display.
type track struct {
	Info        trackInfo        `yaml:"track"`
	Progression chordProgression `yaml:"chord_progression"`
	Rhythm      *rhythmConfig    `yaml:"rhythm,omitempty"`
	Bass        *bassConfig      `yaml:"bass,omitempty"`
	Drums       *drumsConfig     `yaml:"drums,omitempty"`
	Melody      *melodyConfig    `yaml:"melody,omitempty"`
}

type trackInfo struct {
	Title string `yaml:"title"`
	Key   string `yaml:"key"`
	Tempo int    `yaml:"tempo"`
	Style string `yaml:"style"`
}

type chordProgression struct {
	Pattern      stringOrList `yaml:"pattern"`
	BarsPerChord int          `yaml:"bars_per_chord"`
	Repeat       int          `yaml:"repeat"`
}

// stringOrList unmarshals from either a YAML scalar or a sequence of
// scalars, joined with spaces.
type stringOrList string

func (s *stringOrList) UnmarshalYAML(node *yaml.Node) error {
	var str string
	if err := node.Decode(&str); err == nil {
		*s = stringOrList(str)
		return nil
	}
	var list []string
	if err := node.Decode(&list); err == nil {
		*s = stringOrList(strings.Join(list, " "))
	}
	return nil
}

type chord struct {
	Symbol string
	Bars   float64
}

func (cp *chordProgression) chords() []chord {
	parts := strings.Fields(string(cp.Pattern))
	out := make([]chord, 0, len(parts))
	for _, part := range parts {
		symbol, bars := parseChordWithDuration(part, cp.BarsPerChord)
		out = append(out, chord{Symbol: symbol, Bars: bars})
	}
	if cp.Repeat > 1 {
		original := append([]chord(nil), out...)
		for i := 1; i < cp.Repeat; i++ {
			out = append(out, original...)
		}
	}
	return out
}

// parseChordWithDuration splits "Em*2" into ("Em", 2 bars); a bare chord
// symbol uses defaultBars.
func parseChordWithDuration(part string, defaultBars int) (string, float64) {
	if idx := strings.IndexByte(part, '*'); idx != -1 {
		symbol := part[:idx]
		if dur, err := strconv.ParseFloat(part[idx+1:], 64); err == nil {
			if dur <= 0 {
				dur = 0.5
			}
			return symbol, dur
		}
	}
	return part, float64(defaultBars)
}

func (cp *chordProgression) totalBars() int {
	total := 0.0
	for _, c := range cp.chords() {
		total += c.Bars
	}
	return int(math.Ceil(total))
}

type rhythmConfig struct {
	Style  string  `yaml:"style"`
	Swing  float64 `yaml:"swing,omitempty"`
	Accent string  `yaml:"accent,omitempty"`
}

type bassConfig struct {
	Style string  `yaml:"style"`
	Swing float64 `yaml:"swing,omitempty"`
}

type drumsConfig struct {
	Style     string  `yaml:"style"`
	Intensity float64 `yaml:"intensity,omitempty"`
}

type melodyConfig struct {
	Enabled bool    `yaml:"enabled"`
	Style   string  `yaml:"style,omitempty"`
	Density float64 `yaml:"density,omitempty"`
	Octave  int     `yaml:"octave,omitempty"`
}

// parseTrack parses a .btml document, filling in the same defaults the
// original parser applied (one bar per chord, no repeat).
func parseTrack(source string) (*track, error) {
	var t track
	if err := yaml.Unmarshal([]byte(source), &t); err != nil {
		return nil, err
	}
	if t.Progression.BarsPerChord == 0 {
		t.Progression.BarsPerChord = 1
	}
	if t.Progression.Repeat == 0 {
		t.Progression.Repeat = 1
	}
	return &t, nil
}
