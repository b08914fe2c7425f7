package engine

import (
	"fmt"
	"strings"

	"github.com/0xlemi/tunecoach/internal/onset"
	"github.com/0xlemi/tunecoach/internal/pitch"
)

// Tier selects the analysis fidelity for a whole session. Both tiers publish
// the same event shapes.
type Tier int

const (
	// Native runs YIN and the energy-rise onset detector.
	Native Tier = iota
	// Fallback runs FFT autocorrelation and the peak-amplitude onset detector.
	Fallback
)

func (t Tier) String() string {
	switch t {
	case Native:
		return "native"
	case Fallback:
		return "fallback"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier accepts "native" or "fallback".
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "":
		return Native, nil
	case "fallback":
		return Fallback, nil
	}
	return 0, fmt.Errorf("%w: unknown tier %q", ErrInvalidConfig, s)
}

func (t Tier) valid() bool {
	return t == Native || t == Fallback
}

func (t Tier) estimator(p pitch.Params) pitch.Estimator {
	if t == Fallback {
		return pitch.NewAutocorrelator(p)
	}
	return pitch.NewYIN(p)
}

func (t Tier) detector(p onset.Params) onset.Detector {
	if t == Fallback {
		return onset.NewPeakDetector(p)
	}
	return onset.NewEnergyDetector(p)
}
