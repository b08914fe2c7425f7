package audio

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures blocks from the default input device using PortAudio
type PortAudioSource struct {
	mu            sync.Mutex
	isCapturing   bool
	stream        *portaudio.Stream
	blocks        chan Block
	sampleRate    int
	channels      int
	amplification atomic.Uint32 // float32 bits of the amplification factor
	dropped       atomic.Uint64
}

// NewPortAudioSource creates a new capture source using PortAudio. Multi-channel
// input is averaged down to mono.
func NewPortAudioSource(channels int) *PortAudioSource {
	c := &PortAudioSource{channels: max(1, channels)}
	c.amplification.Store(math.Float32bits(1.0))
	return c
}

// Supported reports whether PortAudio initializes and exposes an input device.
func (c *PortAudioSource) Supported() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isCapturing {
		return true
	}

	if err := portaudio.Initialize(); err != nil {
		return false
	}
	defer portaudio.Terminate()

	dev, err := portaudio.DefaultInputDevice()
	return err == nil && dev != nil && dev.MaxInputChannels > 0
}

// Start begins audio capture
func (c *PortAudioSource) Start(sampleRate, blockSize int) error {
	if !validFormat(sampleRate, blockSize) {
		return ErrInvalidFormat
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isCapturing {
		return ErrAlreadyStarted
	}

	if err := portaudio.Initialize(); err != nil {
		return err
	}

	c.sampleRate = sampleRate
	// A few blocks of slack; the callback drops rather than blocks when full.
	c.blocks = make(chan Block, 4)

	// Open default input stream
	stream, err := portaudio.OpenDefaultStream(
		c.channels, // input channels
		0,          // output channels (we don't need output)
		float64(sampleRate),
		blockSize,      // frames per buffer
		c.processAudio, // callback function
	)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}

	c.stream = stream
	c.isCapturing = true
	return nil
}

// Stop ends audio capture
func (c *PortAudioSource) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCapturing {
		return ErrNotStarted
	}
	c.isCapturing = false

	// Stop and close the stream; the callback no longer runs afterwards.
	stopErr := c.stream.Stop()
	closeErr := c.stream.Close()
	c.stream = nil
	close(c.blocks)

	termErr := portaudio.Terminate()

	switch {
	case stopErr != nil:
		return stopErr
	case closeErr != nil:
		return closeErr
	default:
		return termErr
	}
}

// Blocks returns the delivery channel.
func (c *PortAudioSource) Blocks() <-chan Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks
}

// Err always returns nil; PortAudio reports failures from Start only.
func (c *PortAudioSource) Err() error {
	return nil
}

// Dropped returns how many blocks were discarded because the consumer lagged.
func (c *PortAudioSource) Dropped() uint64 {
	return c.dropped.Load()
}

// processAudio is the callback function for audio processing. It runs on the
// PortAudio thread and must not block.
func (c *PortAudioSource) processAudio(in, _ []float32) {
	gain := c.gain()

	var samples []float32
	if c.channels > 1 {
		// Average each set of channel samples and apply amplification
		samples = make([]float32, len(in)/c.channels)
		for i := range samples {
			sum := float32(0)
			for ch := 0; ch < c.channels; ch++ {
				sum += in[i*c.channels+ch]
			}
			samples[i] = (sum / float32(c.channels)) * gain
		}
	} else {
		samples = make([]float32, len(in))
		for i, sample := range in {
			samples[i] = sample * gain
		}
	}

	select {
	case c.blocks <- Block{Samples: samples, SampleRate: c.sampleRate}:
	default:
		c.dropped.Add(1)
	}
}

// gain is read lock-free: Stop holds mu while PortAudio drains the callback.
func (c *PortAudioSource) gain() float32 {
	return math.Float32frombits(c.amplification.Load())
}

// SetAmplification sets the audio amplification factor
func (c *PortAudioSource) SetAmplification(factor float32) {
	// Ensure amplification is positive
	if factor < 0.1 {
		factor = 0.1
	}

	c.amplification.Store(math.Float32bits(factor))
}
