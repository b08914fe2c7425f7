package audio

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Errors
var (
	ErrNotStarted     = errors.New("audio source not started")
	ErrAlreadyStarted = errors.New("audio source already started")
	ErrUnsupported    = errors.New("audio capture not supported on this platform")
	ErrInvalidFormat  = errors.New("invalid sample rate or block size")
	ErrSourceStopped  = errors.New("audio source stopped")
)

// Block is one fixed-size chunk of mono PCM samples.
type Block struct {
	Samples    []float32
	SampleRate int
	At         time.Duration // stream offset of the first sample, set by Timed sources
}

// Len returns the number of samples in the block.
func (b Block) Len() int {
	return len(b.Samples)
}

// Float64 copies the samples into a float64 slice.
func (b Block) Float64() []float64 {
	out := make([]float64, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = float64(s)
	}
	return out
}

// Source defines the interface for block delivery.
//
// Blocks returns a channel that is valid after a successful Start. A source that
// fails or runs out of audio on its own closes the channel; Err then reports why
// (nil for a clean end of input).
type Source interface {
	// Supported reports whether capture can work at all on this platform.
	Supported() bool

	// Start begins delivering blocks of blockSize samples at sampleRate.
	Start(sampleRate, blockSize int) error

	// Stop ends delivery and releases the underlying device or file.
	Stop() error

	// Blocks returns the delivery channel of the running session.
	Blocks() <-chan Block

	// Err returns the reason the source closed its channel on its own.
	Err() error
}

// Timed is implemented by sources that stamp Block.At from their position in
// the stream. When Timed reports true, Block.At is the block's time and the
// delivery time is not.
type Timed interface {
	Timed() bool
}

// StreamOffset converts a sample position to a duration.
func StreamOffset(samples int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}

// DownsampleFactor is the stride used for display batches of n samples.
func DownsampleFactor(n int) int {
	return max(1, n/1024)
}

// Downsample keeps every k-th sample of the block for display and reports the
// reduced sample rate.
func Downsample(b Block) Block {
	k := DownsampleFactor(len(b.Samples))
	out := make([]float32, 0, (len(b.Samples)+k-1)/k)
	for i := 0; i < len(b.Samples); i += k {
		out = append(out, b.Samples[i])
	}
	return Block{Samples: out, SampleRate: b.SampleRate / k, At: b.At}
}

func validFormat(sampleRate, blockSize int) bool {
	return sampleRate > 0 && blockSize > 0
}
