package pitch

import (
	"errors"
	"math"

	"github.com/0xlemi/tunecoach/internal/audio"
)

// Errors
var (
	ErrInvalidFrequency = errors.New("frequency must be positive")
	ErrInvalidNote      = errors.New("invalid note name")
	ErrInvalidParams    = errors.New("invalid pitch parameters")
)

// Detection is one fundamental frequency estimate.
type Detection struct {
	Frequency  float64 // Hz, always within [MinFreq, MaxFreq]
	Confidence float64 // 0-1
}

// Estimator defines the interface for per-block pitch estimation. ok is false
// for silence, ambiguous periodicity and out-of-band results; those are not
// errors.
//
// Implementations keep scratch buffers and are not safe for concurrent use.
type Estimator interface {
	Estimate(block audio.Block) (d Detection, ok bool)
}

// Params are the tunables shared by both estimators.
type Params struct {
	MinFreq    float64 // Lowest frequency reported (Hz)
	MaxFreq    float64 // Highest frequency reported (Hz)
	SilenceRMS float64 // Blocks quieter than this are not analyzed

	// YIN only
	Threshold    float64 // Absolute threshold on the normalized difference
	MaxAmbiguity float64 // Fallback minimum above this is rejected

	// Autocorrelation only
	MinClarity float64 // Normalized correlation a peak must reach
}

// DefaultParams returns the engine defaults.
func DefaultParams() Params {
	return Params{
		MinFreq:      60,
		MaxFreq:      1500,
		SilenceRMS:   0.01,
		Threshold:    0.15,
		MaxAmbiguity: 0.5,
		MinClarity:   0.9,
	}
}

// Validate checks the parameters for consistency.
func (p Params) Validate() error {
	switch {
	case p.MinFreq <= 0 || p.MaxFreq <= p.MinFreq:
		return ErrInvalidParams
	case p.Threshold <= 0 || p.Threshold >= 1:
		return ErrInvalidParams
	case p.MaxAmbiguity <= 0 || p.MaxAmbiguity > 1:
		return ErrInvalidParams
	case p.MinClarity <= 0 || p.MinClarity >= 1:
		return ErrInvalidParams
	case p.SilenceRMS < 0:
		return ErrInvalidParams
	}
	return nil
}

// lagRange returns the period search range [minPeriod, maxPeriod) for a block
// of n samples.
func (p Params) lagRange(sampleRate, n int) (minPeriod, maxPeriod int) {
	halfN := n / 2
	minPeriod = int(float64(sampleRate) / p.MaxFreq)
	maxPeriod = min(halfN-1, int(float64(sampleRate)/p.MinFreq))
	return minPeriod, maxPeriod
}

func (p Params) inBand(freq float64) bool {
	return freq >= p.MinFreq && freq <= p.MaxFreq
}

// parabolicOffset returns the fractional offset of the extremum of the
// parabola through (−1, a), (0, b), (1, c). ok is false when the result is not
// finite.
func parabolicOffset(a, b, c float64) (float64, bool) {
	adj := (c - a) / (2 * (2*b - c - a))
	if math.IsNaN(adj) || math.IsInf(adj, 0) {
		return 0, false
	}
	return adj, true
}
