package btml

import "strings"

// scaleType names a scale used to pick improvised melody notes over a
// chord progression.
type scaleType string

const (
	scalePentatonicMinor scaleType = "pentatonic_minor"
	scalePentatonicMajor scaleType = "pentatonic_major"
	scaleBlues           scaleType = "blues"
	scaleNaturalMinor    scaleType = "natural_minor"
	scaleNaturalMajor    scaleType = "natural_major"
	scaleDorian          scaleType = "dorian"
	scaleMixolydian      scaleType = "mixolydian"
	scaleHarmonicMinor   scaleType = "harmonic_minor"
)

// scaleIntervals maps a scale to its interval pattern in semitones from
// the root.
var scaleIntervals = map[scaleType][]int{
	scalePentatonicMinor: {0, 3, 5, 7, 10},
	scalePentatonicMajor: {0, 2, 4, 7, 9},
	scaleBlues:           {0, 3, 5, 6, 7, 10},
	scaleNaturalMinor:    {0, 2, 3, 5, 7, 8, 10},
	scaleNaturalMajor:    {0, 2, 4, 5, 7, 9, 11},
	scaleDorian:          {0, 2, 3, 5, 7, 9, 10},
	scaleMixolydian:      {0, 2, 4, 5, 7, 9, 10},
	scaleHarmonicMinor:   {0, 2, 3, 5, 7, 8, 11},
}

// noteNames is the sharp spelling used whenever a pitch class needs a
// display name.
var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// scale is a pitch-class set anchored at a root, used to keep an
// improvised melody inside the key.
type scale struct {
	root      int
	intervals []int
}

func newScale(root int, t scaleType) *scale {
	root = ((root % 12) + 12) % 12
	intervals, ok := scaleIntervals[t]
	if !ok {
		intervals = scaleIntervals[scalePentatonicMinor]
	}
	return &scale{root: root, intervals: intervals}
}

// contains reports whether midiNote's pitch class is in the scale.
func (s *scale) contains(midiNote int) bool {
	rel := (((midiNote % 12) - s.root) + 12) % 12
	for _, iv := range s.intervals {
		if iv == rel {
			return true
		}
	}
	return false
}

// notesInRange returns every scale-member MIDI note between low and high
// inclusive, ascending.
func (s *scale) notesInRange(low, high int) []int {
	var notes []int
	for n := low; n <= high; n++ {
		if s.contains(n) {
			notes = append(notes, n)
		}
	}
	return notes
}

// parseKey parses a key string such as "Am", "Bb", "F#m" into a root
// pitch class (0-11) and whether it names a minor key.
func parseKey(keyStr string) (root int, isMinor bool) {
	keyStr = strings.TrimSpace(keyStr)
	if keyStr == "" {
		return 0, false
	}
	lower := strings.ToLower(keyStr)
	isMinor = strings.HasSuffix(lower, "m") && !strings.HasSuffix(lower, "maj")
	rootStr := keyStr
	if isMinor {
		rootStr = keyStr[:len(keyStr)-1]
	}
	return noteToMidi(rootStr), isMinor
}

var noteToPitchClass = map[string]int{
	"C": 0, "C#": 1, "Db": 1,
	"D": 2, "D#": 3, "Eb": 3,
	"E": 4, "Fb": 4, "E#": 5,
	"F": 5, "F#": 6, "Gb": 6,
	"G": 7, "G#": 8, "Ab": 8,
	"A": 9, "A#": 10, "Bb": 10,
	"B": 11, "Cb": 11, "B#": 0,
}

func noteToMidi(note string) int {
	note = strings.TrimSpace(note)
	if pc, ok := noteToPitchClass[note]; ok {
		return pc
	}
	if len(note) >= 1 {
		base := strings.ToUpper(string(note[0]))
		if len(note) >= 2 {
			acc := string(note[1])
			if acc == "#" || acc == "b" {
				if pc, ok := noteToPitchClass[base+acc]; ok {
					return pc
				}
			}
		}
		if pc, ok := noteToPitchClass[base]; ok {
			return pc
		}
	}
	return 0
}

// scaleForStyle picks a scale that fits a track's overall style and key;
// styles mentioning blues/jazz/rock/pop/folk/funk/country each bias
// toward the scale idiomatic for that genre, defaulting to the minor
// pentatonic (it sits comfortably over both major and minor harmony).
func scaleForStyle(key, style string) *scale {
	root, isMinor := parseKey(key)
	style = strings.ToLower(style)
	switch {
	case strings.Contains(style, "blues"):
		return newScale(root, scaleBlues)
	case strings.Contains(style, "jazz"):
		if isMinor {
			return newScale(root, scaleDorian)
		}
		return newScale(root, scaleMixolydian)
	case strings.Contains(style, "pop"):
		if isMinor {
			return newScale(root, scaleNaturalMinor)
		}
		return newScale(root, scaleNaturalMajor)
	case strings.Contains(style, "folk"):
		if isMinor {
			return newScale(root, scaleNaturalMinor)
		}
		return newScale(root, scalePentatonicMajor)
	case strings.Contains(style, "funk"), strings.Contains(style, "soul"):
		return newScale(root, scaleDorian)
	case strings.Contains(style, "country"):
		return newScale(root, scalePentatonicMajor)
	default:
		return newScale(root, scalePentatonicMinor)
	}
}

// chordVoicing returns MIDI note numbers (in octave 3, root around 48)
// for a chord symbol such as "Am7", "G", "D7", "Cmaj7", "E5".
func chordVoicing(symbol string) []uint8 {
	root := chordRoot(symbol)
	quality := chordQuality(symbol)
	rootNote := uint8(root + 48)

	switch quality {
	case "7":
		return []uint8{rootNote, rootNote + 4, rootNote + 7, rootNote + 10}
	case "maj7":
		return []uint8{rootNote, rootNote + 4, rootNote + 7, rootNote + 11}
	case "m7":
		return []uint8{rootNote, rootNote + 3, rootNote + 7, rootNote + 10}
	case "m":
		return []uint8{rootNote, rootNote + 3, rootNote + 7}
	case "5":
		return []uint8{rootNote, rootNote + 7, rootNote + 12}
	default:
		return []uint8{rootNote, rootNote + 4, rootNote + 7}
	}
}

func chordRoot(symbol string) int {
	if symbol == "" {
		return 0
	}
	root := strings.ToUpper(string(symbol[0]))
	if len(symbol) > 1 && (symbol[1] == '#' || symbol[1] == 'b') {
		root += string(symbol[1])
	}
	return noteToMidi(root)
}

func chordQuality(symbol string) string {
	quality := symbol
	if len(symbol) > 0 {
		quality = symbol[1:]
	}
	if len(quality) > 0 && (quality[0] == '#' || quality[0] == 'b') {
		quality = quality[1:]
	}
	switch {
	case quality == "":
		return "major"
	case strings.HasPrefix(quality, "maj7"), quality == "^7":
		return "maj7"
	case strings.HasPrefix(quality, "m7"):
		return "m7"
	case quality == "7":
		return "7"
	case quality == "m":
		return "m"
	case quality == "5":
		return "5"
	default:
		return "major"
	}
}
