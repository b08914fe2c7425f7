package pitch

import (
	"errors"
	"math"
	"testing"
)

func TestNoteFromFrequencyA4(t *testing.T) {
	n, err := NoteFromFrequency(440.0)
	if err != nil {
		t.Fatal(err)
	}
	if n.Name != "A4" || n.MIDI != 69 {
		t.Fatalf("got %s/%d, want A4/69", n.Name, n.MIDI)
	}
	if n.Class != "A" || n.Octave != 4 || n.Frequency != 440 {
		t.Fatalf("unexpected note %+v", n)
	}
}

func TestMIDIRoundTrip(t *testing.T) {
	for m := -24; m <= 160; m++ {
		n := NoteFromMIDI(m)
		if n.MIDI != m {
			t.Fatalf("NoteFromMIDI(%d).MIDI = %d", m, n.MIDI)
		}

		back, err := NoteFromFrequency(n.Frequency)
		if err != nil {
			t.Fatalf("midi %d: %v", m, err)
		}
		if back.MIDI != m {
			t.Fatalf("round trip of midi %d gave %d", m, back.MIDI)
		}

		want := 440 * math.Pow(2, float64(m-69)/12)
		if math.Abs(n.Frequency-want) > 1e-9*want {
			t.Fatalf("midi %d: frequency %g, want %g", m, n.Frequency, want)
		}
	}
}

func TestNoteNameOctaveInvariance(t *testing.T) {
	for m := -12; m < 120; m++ {
		a, b := NoteFromMIDI(m), NoteFromMIDI(m+12)
		if a.Class != b.Class {
			t.Fatalf("midi %d and %d: class %s vs %s", m, m+12, a.Class, b.Class)
		}
		if b.Octave != a.Octave+1 {
			t.Fatalf("midi %d and %d: octave %d vs %d", m, m+12, a.Octave, b.Octave)
		}
	}
}

func TestNoteNames(t *testing.T) {
	tests := []struct {
		midi int
		name string
	}{
		{60, "C4"},
		{61, "C#4"},
		{21, "A0"},
		{0, "C-1"},
		{-1, "B-2"},
		{127, "G9"},
	}

	for _, tt := range tests {
		if got := NoteFromMIDI(tt.midi).Name; got != tt.name {
			t.Errorf("NoteFromMIDI(%d) = %s, want %s", tt.midi, got, tt.name)
		}
	}
}

func TestNoteFromFrequencyRejectsNonPositive(t *testing.T) {
	for _, f := range []float64{0, -440, math.NaN(), math.Inf(1)} {
		if _, err := NoteFromFrequency(f); !errors.Is(err, ErrInvalidFrequency) {
			t.Errorf("NoteFromFrequency(%g): got %v, want ErrInvalidFrequency", f, err)
		}
	}
}

func TestNearestNoteAndCents(t *testing.T) {
	n, err := NoteFromFrequency(445)
	if err != nil {
		t.Fatal(err)
	}
	if n.Name != "A4" {
		t.Fatalf("445 Hz mapped to %s, want A4", n.Name)
	}
	if c := n.CentsOff(445); math.Abs(c-19.56) > 0.01 {
		t.Errorf("cents = %.3f, want ~19.56", c)
	}

	// Just past the quarter tone above A4 belongs to A#4.
	n, _ = NoteFromFrequency(440 * math.Pow(2, 51.0/1200))
	if n.Name != "A#4" {
		t.Errorf("got %s, want A#4", n.Name)
	}
}

func TestIsMatch(t *testing.T) {
	a4 := NoteFromMIDI(69)

	tests := []struct {
		freq float64
		want bool
	}{
		{440, true},
		{442, true},  // ~7.85 cents
		{450, false}, // ~38.9 cents
		{434, true},  // ~-23.8 cents
		{427, false},
		{0, false},
	}

	for _, tt := range tests {
		if got := IsMatch(tt.freq, a4); got != tt.want {
			t.Errorf("IsMatch(%g, A4) = %v, want %v", tt.freq, got, tt.want)
		}
	}
}

func TestParseNote(t *testing.T) {
	tests := []struct {
		in   string
		midi int
	}{
		{"A4", 69},
		{"C4", 60},
		{"c#4", 61},
		{"Db4", 61},
		{"Bb3", 58},
		{"Cb4", 59},
		{"B#3", 60},
		{"E#4", 65},
		{"C-1", 0},
		{" G2 ", 43},
	}

	for _, tt := range tests {
		n, err := ParseNote(tt.in)
		if err != nil {
			t.Errorf("ParseNote(%q): %v", tt.in, err)
			continue
		}
		if n.MIDI != tt.midi {
			t.Errorf("ParseNote(%q) = %d, want %d", tt.in, n.MIDI, tt.midi)
		}
	}

	for _, bad := range []string{"", "A", "H4", "A#", "C##4", "4A"} {
		if _, err := ParseNote(bad); !errors.Is(err, ErrInvalidNote) {
			t.Errorf("ParseNote(%q): got %v, want ErrInvalidNote", bad, err)
		}
	}
}
