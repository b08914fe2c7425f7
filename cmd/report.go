package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/0xlemi/tunecoach/internal/engine"
	"github.com/0xlemi/tunecoach/internal/onset"
	"github.com/0xlemi/tunecoach/internal/pitch"
)

// formatEvent renders one event as a line of plain output, or "" for events
// that have no text form.
func formatEvent(ev engine.Event, target *pitch.Note) string {
	switch e := ev.(type) {
	case engine.PitchDetected:
		line := fmt.Sprintf("%8dms  note   %-4s %8.2f Hz %+6.1f cents  conf %.2f",
			e.At.Milliseconds(), e.Note.Name, e.Frequency, e.CentsOff, e.Confidence)
		if target != nil && e.Matches(*target) {
			line += "  match"
		}
		return line
	case engine.OnsetDetected:
		return fmt.Sprintf("%8dms  onset", e.Millis())
	case engine.StreamStalled:
		return fmt.Sprintf("%8dms  stalled (no audio for %v)", e.At.Milliseconds(), e.Waited)
	case engine.StreamRecovered:
		return fmt.Sprintf("%8dms  recovered after %v", e.At.Milliseconds(), e.Outage)
	case engine.CaptureEnded:
		if e.Err != nil {
			return "capture ended: " + e.Err.Error()
		}
		return "capture ended"
	}
	return ""
}

// summary accumulates what one session produced.
type summary struct {
	pitches int
	matches int
	notes   map[string]int
	meter   *onset.Meter
}

func newSummary() *summary {
	return &summary{notes: make(map[string]int), meter: onset.NewMeter(0)}
}

func (s *summary) add(ev engine.Event, target *pitch.Note) {
	switch e := ev.(type) {
	case engine.PitchDetected:
		s.pitches++
		s.notes[e.Note.Name]++
		if target != nil && e.Matches(*target) {
			s.matches++
		}
	case engine.OnsetDetected:
		s.meter.Add(onset.Event{At: e.At})
	}
}

// topNotes returns up to n note names by detection count.
func (s *summary) topNotes(n int) []string {
	names := make([]string, 0, len(s.notes))
	for name := range s.notes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.notes[names[i]] != s.notes[names[j]] {
			return s.notes[names[i]] > s.notes[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func (s *summary) write(w io.Writer, target *pitch.Note) {
	fmt.Fprintf(w, "  pitched blocks: %d\n", s.pitches)
	if top := s.topNotes(3); len(top) > 0 {
		parts := make([]string, len(top))
		for i, name := range top {
			parts[i] = fmt.Sprintf("%s (%d)", name, s.notes[name])
		}
		fmt.Fprintf(w, "  notes: %s\n", strings.Join(parts, ", "))
	}
	if target != nil && s.pitches > 0 {
		fmt.Fprintf(w, "  on %s: %d of %d (%.0f%%)\n", target.Name, s.matches, s.pitches,
			100*float64(s.matches)/float64(s.pitches))
	}

	st := s.meter.Stats()
	fmt.Fprintf(w, "  onsets: %d\n", st.Count)
	if st.MeanInterval > 0 {
		fmt.Fprintf(w, "  mean interval: %dms (%.0f bpm), jitter: %dms\n",
			st.MeanInterval.Milliseconds(), st.BPM(), st.Jitter.Milliseconds())
	}
}
