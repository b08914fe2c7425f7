package engine

import (
	"time"

	"github.com/0xlemi/tunecoach/internal/pitch"
)

// Kind identifies an event type for subscription filtering.
type Kind uint8

const (
	KindPitch Kind = iota
	KindOnset
	KindSamples
	KindStalled
	KindRecovered
	KindEnded
)

func (k Kind) String() string {
	switch k {
	case KindPitch:
		return "pitch"
	case KindOnset:
		return "onset"
	case KindSamples:
		return "samples"
	case KindStalled:
		return "stalled"
	case KindRecovered:
		return "recovered"
	case KindEnded:
		return "ended"
	}
	return "unknown"
}

// Event is anything the engine publishes.
type Event interface {
	Kind() Kind
}

// PitchDetected reports the fundamental of one block mapped to the nearest note.
type PitchDetected struct {
	Frequency  float64
	Confidence float64
	Note       pitch.Note
	CentsOff   float64
	At         time.Duration // offset from session start
}

func (PitchDetected) Kind() Kind { return KindPitch }

// Matches reports whether the detection is within tolerance of target.
func (p PitchDetected) Matches(target pitch.Note) bool {
	return pitch.IsMatch(p.Frequency, target)
}

// OnsetDetected reports an accepted onset.
type OnsetDetected struct {
	At time.Duration // offset from session start
}

func (OnsetDetected) Kind() Kind { return KindOnset }

// Millis returns the timestamp in milliseconds.
func (o OnsetDetected) Millis() int64 { return o.At.Milliseconds() }

// SamplesBatch is a downsampled copy of a block for display.
type SamplesBatch struct {
	Samples    []float32
	SampleRate int
}

func (SamplesBatch) Kind() Kind { return KindSamples }

// StreamStalled is published once when no block has arrived for the stall
// timeout. The session keeps running.
type StreamStalled struct {
	At     time.Duration
	Waited time.Duration
}

func (StreamStalled) Kind() Kind { return KindStalled }

// StreamRecovered is published when blocks resume after a stall.
type StreamRecovered struct {
	At     time.Duration
	Outage time.Duration
}

func (StreamRecovered) Kind() Kind { return KindRecovered }

// CaptureEnded is published after the source closed on its own and the engine
// returned to Idle. Err is nil for a clean end of input.
type CaptureEnded struct {
	Err error
}

func (CaptureEnded) Kind() Kind { return KindEnded }
