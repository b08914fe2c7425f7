// Package onset detects percussive attacks (taps, claps, note strikes) in a
// block stream and keeps timing statistics over them.
package onset

import (
	"errors"
	"math"
	"time"

	"github.com/0xlemi/tunecoach/internal/audio"
)

// Errors
var (
	ErrInvalidParams = errors.New("invalid onset parameters")
)

// Event marks one accepted onset. At is a monotonic offset from session start.
type Event struct {
	At time.Duration
}

// Millis returns the timestamp in whole milliseconds.
func (e Event) Millis() int64 {
	return e.At.Milliseconds()
}

// State is the per-session memory of a detector. The owner passes the same
// State on every call and never shares it between goroutines.
type State struct {
	PreviousRMS float64
	LastOnset   time.Duration
	HasOnset    bool
}

// Reset clears the state for a new session.
func (s *State) Reset() {
	*s = State{}
}

func (s *State) debounced(now, window time.Duration) bool {
	return s.HasOnset && now-s.LastOnset <= window
}

func (s *State) accept(now time.Duration) Event {
	s.LastOnset = now
	s.HasOnset = true
	return Event{At: now}
}

// Detector decides whether a block starts an onset.
type Detector interface {
	Detect(block audio.Block, now time.Duration, state *State) (Event, bool)
}

// Params are the onset tunables shared by both detectors.
type Params struct {
	Threshold     float64       // RMS rise that triggers the energy detector
	PeakThreshold float64       // absolute sample level that triggers the peak detector
	Debounce      time.Duration // minimum spacing of accepted onsets
}

// DefaultParams returns the defaults.
func DefaultParams() Params {
	return Params{
		Threshold:     0.10,
		PeakThreshold: 0.12,
		Debounce:      120 * time.Millisecond,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	switch {
	case p.Threshold <= 0 || p.Threshold >= 1:
		return ErrInvalidParams
	case p.PeakThreshold <= 0 || p.PeakThreshold >= 1:
		return ErrInvalidParams
	case p.Debounce < 0:
		return ErrInvalidParams
	}
	return nil
}

// EnergyDetector fires when block RMS rises by more than the threshold over the
// previous block. It is cheap and has known blind spots: slow crescendos can
// fire it and soft attacks can slip under it.
type EnergyDetector struct {
	params Params
}

// NewEnergyDetector creates the full-fidelity onset detector.
func NewEnergyDetector(params Params) *EnergyDetector {
	return &EnergyDetector{params: params}
}

// Detect updates state.PreviousRMS on every call and reports an onset when the
// rise exceeds the threshold outside the debounce window.
func (d *EnergyDetector) Detect(block audio.Block, now time.Duration, state *State) (Event, bool) {
	rms := audio.RMS(block.Float64())
	delta := rms - state.PreviousRMS
	state.PreviousRMS = rms

	if delta <= d.params.Threshold || state.debounced(now, d.params.Debounce) {
		return Event{}, false
	}
	return state.accept(now), true
}

// PeakDetector is the reduced-fidelity onset detector: any sample whose
// magnitude exceeds the threshold counts, subject to the same debounce.
type PeakDetector struct {
	params Params
}

// NewPeakDetector creates the fallback onset detector.
func NewPeakDetector(params Params) *PeakDetector {
	return &PeakDetector{params: params}
}

// Detect reports an onset when the block peak crosses the threshold.
func (d *PeakDetector) Detect(block audio.Block, now time.Duration, state *State) (Event, bool) {
	peak := 0.0
	sumSquares := 0.0
	for _, s := range block.Samples {
		v := float64(s)
		sumSquares += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if n := len(block.Samples); n > 0 {
		state.PreviousRMS = math.Sqrt(sumSquares / float64(n))
	}

	if peak <= d.params.PeakThreshold || state.debounced(now, d.params.Debounce) {
		return Event{}, false
	}
	return state.accept(now), true
}
