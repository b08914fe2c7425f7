package pitch

import (
	"math"

	"github.com/0xlemi/tunecoach/internal/audio"
)

// YIN estimates the fundamental with the cumulative mean normalized difference
// function (de Cheveigné & Kawahara, 2002). It is the full-fidelity tier.
type YIN struct {
	params Params
	buf    []float64 // difference function, reused across blocks
}

// NewYIN creates a YIN estimator.
func NewYIN(params Params) *YIN {
	return &YIN{params: params}
}

// Estimate analyzes one block. The first half of the block bounds the lag.
func (y *YIN) Estimate(block audio.Block) (Detection, bool) {
	n := block.Len()
	if n < 4 || block.SampleRate <= 0 {
		return Detection{}, false
	}

	x := block.Float64()
	if audio.RMS(x) < y.params.SilenceRMS {
		return Detection{}, false
	}

	halfN := n / 2
	minPeriod, maxPeriod := y.params.lagRange(block.SampleRate, n)
	if minPeriod < 1 {
		minPeriod = 1
	}
	if minPeriod >= maxPeriod {
		return Detection{}, false
	}

	d := y.difference(x, halfN)
	cumulativeMeanNormalize(d)

	tau, ok := y.absoluteThreshold(d, minPeriod, maxPeriod)
	if !ok {
		return Detection{}, false
	}

	period := float64(tau)
	if tau > 0 && tau < halfN-1 {
		if adj, ok := parabolicOffset(d[tau-1], d[tau], d[tau+1]); ok {
			period += adj
		}
	}
	if period <= 0 {
		return Detection{}, false
	}

	freq := float64(block.SampleRate) / period
	if !y.params.inBand(freq) {
		return Detection{}, false
	}

	return Detection{
		Frequency:  freq,
		Confidence: math.Max(0, math.Min(1, 1-d[tau])),
	}, true
}

// difference computes d(τ) = Σ_{i<halfN} (x[i] − x[i+τ])² for τ in [0, halfN).
func (y *YIN) difference(x []float64, halfN int) []float64 {
	if cap(y.buf) < halfN {
		y.buf = make([]float64, halfN)
	}
	d := y.buf[:halfN]

	for tau := 0; tau < halfN; tau++ {
		sum := 0.0
		for i := 0; i < halfN; i++ {
			delta := x[i] - x[i+tau]
			sum += delta * delta
		}
		d[tau] = sum
	}
	return d
}

// cumulativeMeanNormalize rewrites d in place as d'(τ) = d(τ)·τ / Σ_{k=1..τ} d(k),
// with d'(0) = 1. Lags whose running sum is not positive stay unscaled.
func cumulativeMeanNormalize(d []float64) {
	d[0] = 1
	running := 0.0
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		if running > 0 {
			d[tau] = d[tau] * float64(tau) / running
		}
	}
}

// absoluteThreshold picks the first dip below the threshold, settled on its
// local minimum, or else the global minimum if it is unambiguous enough.
func (y *YIN) absoluteThreshold(d []float64, minPeriod, maxPeriod int) (int, bool) {
	for tau := minPeriod; tau < maxPeriod; tau++ {
		if d[tau] < y.params.Threshold {
			for tau+1 < len(d) && d[tau+1] < d[tau] {
				tau++
			}
			return tau, true
		}
	}

	best := -1
	minVal := math.Inf(1)
	for tau := minPeriod; tau < maxPeriod; tau++ {
		if d[tau] < minVal {
			minVal = d[tau]
			best = tau
		}
	}
	if best <= 0 || minVal > y.params.MaxAmbiguity {
		return 0, false
	}
	return best, true
}
