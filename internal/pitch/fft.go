package pitch

import (
	"math"

	"github.com/0xlemi/tunecoach/internal/audio"
	"github.com/mjibson/go-dsp/fft"
)

// Autocorrelator is the reduced-fidelity tier: a normalized autocorrelation
// (McLeod's NSDF) computed through the FFT, with a plain peak pick instead of
// YIN's dip tracking.
type Autocorrelator struct {
	params Params
	padded []float64
	nsdf   []float64
}

// NewAutocorrelator creates a fallback estimator.
func NewAutocorrelator(params Params) *Autocorrelator {
	return &Autocorrelator{params: params}
}

// peak is a local maximum of the NSDF within one positive lobe.
type peak struct {
	lag   int
	value float64
}

// Estimate analyzes one block.
func (a *Autocorrelator) Estimate(block audio.Block) (Detection, bool) {
	n := block.Len()
	if n < 4 || block.SampleRate <= 0 {
		return Detection{}, false
	}

	x := block.Float64()
	if audio.RMS(x) < a.params.SilenceRMS {
		return Detection{}, false
	}

	minPeriod, maxPeriod := a.params.lagRange(block.SampleRate, n)
	if minPeriod < 1 {
		minPeriod = 1
	}
	if minPeriod >= maxPeriod {
		return Detection{}, false
	}

	nsdf := a.normalizedAutocorrelation(x, maxPeriod+1)

	best, ok := a.pickPeak(nsdf, minPeriod, maxPeriod)
	if !ok || best.value < a.params.MinClarity {
		return Detection{}, false
	}

	period := float64(best.lag)
	if adj, ok := parabolicOffset(nsdf[best.lag-1], nsdf[best.lag], nsdf[best.lag+1]); ok {
		period += adj
	}

	freq := float64(block.SampleRate) / period
	if !a.params.inBand(freq) {
		return Detection{}, false
	}

	return Detection{
		Frequency:  freq,
		Confidence: math.Min(1, best.value),
	}, true
}

// normalizedAutocorrelation returns nsdf[τ] = 2·r(τ) / m(τ) for τ < lags, where
// r is the autocorrelation and m the energy of the two overlapping segments.
func (a *Autocorrelator) normalizedAutocorrelation(x []float64, lags int) []float64 {
	n := len(x)

	// Zero-pad to at least 2n so the circular correlation does not wrap.
	size := nextPow2(2 * n)
	if cap(a.padded) < size {
		a.padded = make([]float64, size)
	}
	padded := a.padded[:size]
	copy(padded, x)
	for i := n; i < size; i++ {
		padded[i] = 0
	}

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		spectrum[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	r := fft.IFFT(spectrum)

	if cap(a.nsdf) < lags {
		a.nsdf = make([]float64, lags)
	}
	nsdf := a.nsdf[:lags]

	m := 0.0
	for _, v := range x {
		m += 2 * v * v
	}
	for tau := 0; tau < lags; tau++ {
		if tau > 0 {
			m -= x[tau-1]*x[tau-1] + x[n-tau]*x[n-tau]
		}
		if m > 0 {
			nsdf[tau] = 2 * real(r[tau]) / m
		} else {
			nsdf[tau] = 0
		}
	}
	return nsdf
}

// pickPeak collects the maximum of every positive lobe after the zero-lag lobe
// and returns the first one within the band that comes close to the highest.
func (a *Autocorrelator) pickPeak(nsdf []float64, minPeriod, maxPeriod int) (peak, bool) {
	const closeToHighest = 0.93

	// Skip the lobe around τ = 0.
	tau := 1
	for tau < maxPeriod && nsdf[tau] > 0 {
		tau++
	}

	var peaks []peak
	var current peak
	inLobe := false
	for ; tau < maxPeriod; tau++ {
		v := nsdf[tau]
		switch {
		case v > 0 && !inLobe:
			inLobe = true
			current = peak{lag: tau, value: v}
		case v > 0 && v > current.value:
			current = peak{lag: tau, value: v}
		case v <= 0 && inLobe:
			inLobe = false
			peaks = append(peaks, current)
		}
	}
	if inLobe {
		peaks = append(peaks, current)
	}

	highest := 0.0
	for _, p := range peaks {
		if p.lag >= minPeriod && p.value > highest {
			highest = p.value
		}
	}
	for _, p := range peaks {
		if p.lag >= minPeriod && p.value >= closeToHighest*highest {
			return p, p.lag > 0
		}
	}
	return peak{}, false
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
