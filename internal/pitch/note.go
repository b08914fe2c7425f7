package pitch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MatchTolerance is the largest deviation in cents still counted as a match.
const MatchTolerance = 25.0

// Note represents a musical note in twelve-tone equal temperament, A4 = 440 Hz.
type Note struct {
	Name      string  // e.g., "A4", "C#3"
	Class     string  // e.g., "A", "C#"
	Octave    int     // e.g., 4 for middle C (C4)
	MIDI      int     // semitone index, A4 = 69
	Frequency float64 // nominal frequency in Hz
}

// All note names in chromatic order
var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flatNames = map[string]string{
	"Db": "C#", "Eb": "D#", "Gb": "F#", "Ab": "G#", "Bb": "A#",
	"Cb": "B", "Fb": "E", "E#": "F", "B#": "C",
}

// MIDIFrequency returns the equal-tempered frequency of a MIDI note number.
func MIDIFrequency(midi int) float64 {
	return 440 * math.Pow(2, float64(midi-69)/12)
}

// NoteFromMIDI builds the note for a MIDI number.
func NoteFromMIDI(midi int) Note {
	class := noteNames[floorMod(midi, 12)]
	octave := floorDiv(midi, 12) - 1
	return Note{
		Name:      class + strconv.Itoa(octave),
		Class:     class,
		Octave:    octave,
		MIDI:      midi,
		Frequency: MIDIFrequency(midi),
	}
}

// NoteFromFrequency returns the nearest equal-tempered note to freq.
func NoteFromFrequency(freq float64) (Note, error) {
	if !(freq > 0) || math.IsInf(freq, 1) {
		return Note{}, ErrInvalidFrequency
	}
	midi := int(math.Round(69 + 12*math.Log2(freq/440)))
	return NoteFromMIDI(midi), nil
}

// Cents returns the deviation of freq from ref in cents. Both must be positive.
func Cents(freq, ref float64) float64 {
	return 1200 * math.Log2(freq/ref)
}

// CentsOff returns the deviation of freq from the note's nominal frequency.
func (n Note) CentsOff(freq float64) float64 {
	return Cents(freq, n.Frequency)
}

// IsMatch reports whether detected is within MatchTolerance cents of target.
func IsMatch(detected float64, target Note) bool {
	if !(detected > 0) || !(target.Frequency > 0) {
		return false
	}
	return math.Abs(Cents(detected, target.Frequency)) < MatchTolerance
}

// ParseNote parses names like "A4", "C#3", "Bb2" or "c-1".
func ParseNote(s string) (Note, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Note{}, fmt.Errorf("%w: %q", ErrInvalidNote, s)
	}

	class := strings.ToUpper(s[:1])
	rest := s[1:]
	if rest[0] == '#' || rest[0] == 'b' {
		class += rest[:1]
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return Note{}, fmt.Errorf("%w: %q", ErrInvalidNote, s)
	}

	shift := 0
	if alias, ok := flatNames[class]; ok {
		// Cb and B# cross the octave boundary.
		switch class {
		case "Cb":
			shift = -1
		case "B#":
			shift = 1
		}
		class = alias
	}

	for i, name := range noteNames {
		if name == class {
			return NoteFromMIDI((octave+1+shift)*12 + i), nil
		}
	}
	return Note{}, fmt.Errorf("%w: %q", ErrInvalidNote, s)
}

func (n Note) String() string {
	return n.Name
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
