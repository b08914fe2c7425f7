package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWav is returned when the file is not a PCM WAV file.
var ErrInvalidWav = errors.New("invalid WAV file")

// WavSource replays a WAV file as a sequence of mono blocks. Blocks carry the
// file's own sample rate, which wins over the rate requested in Start.
type WavSource struct {
	path     string
	realtime bool

	mu      sync.Mutex
	running bool
	file    *os.File
	blocks  chan Block
	quit    chan struct{}
	wg      sync.WaitGroup
	err     error
}

// NewWavSource creates a source for path. With realtime set, blocks are paced
// at the rate a live device would deliver them.
func NewWavSource(path string, realtime bool) *WavSource {
	return &WavSource{path: path, realtime: realtime}
}

// Supported reports whether the file exists and is a regular file.
func (s *WavSource) Supported() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}

// Start opens the file and begins decoding in the background.
func (s *WavSource) Start(sampleRate, blockSize int) error {
	if !validFormat(sampleRate, blockSize) {
		return ErrInvalidFormat
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}

	f, err := os.Open(s.path)
	if err != nil {
		return err
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s", ErrInvalidWav, s.path)
	}
	format := dec.Format()
	if format == nil || format.NumChannels < 1 || format.SampleRate < 1 || dec.BitDepth == 0 {
		f.Close()
		return fmt.Errorf("%w: %s", ErrInvalidWav, s.path)
	}

	s.file = f
	s.blocks = make(chan Block, 1)
	s.quit = make(chan struct{})
	s.err = nil
	s.running = true

	s.wg.Add(1)
	go s.run(dec, format, blockSize, s.blocks, s.quit)
	return nil
}

// Stop halts decoding and closes the file.
func (s *WavSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.running = false
	close(s.quit)
	f := s.file
	s.file = nil
	s.mu.Unlock()

	s.wg.Wait()
	return f.Close()
}

// Blocks returns the delivery channel.
func (s *WavSource) Blocks() <-chan Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}

// Timed reports true: blocks are stamped with their position in the file.
func (s *WavSource) Timed() bool {
	return true
}

// Err returns the decode error that ended the replay, if any.
func (s *WavSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *WavSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *WavSource) run(dec *wav.Decoder, format *goaudio.Format, blockSize int, blocks chan<- Block, quit <-chan struct{}) {
	defer s.wg.Done()
	defer close(blocks)

	channels := format.NumChannels
	scale := float32(int64(1) << (dec.BitDepth - 1))
	buf := &goaudio.IntBuffer{Format: format, Data: make([]int, blockSize*channels)}
	pending := make([]float32, 0, blockSize*2)
	var pos int64 // frames delivered so far

	var tick <-chan time.Time
	if s.realtime {
		interval := time.Duration(float64(blockSize) / float64(format.SampleRate) * float64(time.Second))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			s.fail(err)
			return
		}
		if n == 0 {
			return
		}

		// Interleaved frames to mono.
		for i := 0; i+channels <= n; i += channels {
			sum := 0
			for ch := 0; ch < channels; ch++ {
				sum += buf.Data[i+ch]
			}
			pending = append(pending, float32(sum)/float32(channels)/scale)
		}

		for len(pending) >= blockSize {
			samples := make([]float32, blockSize)
			copy(samples, pending[:blockSize])
			pending = append(pending[:0], pending[blockSize:]...)

			if tick != nil {
				select {
				case <-tick:
				case <-quit:
					return
				}
			}

			b := Block{
				Samples:    samples,
				SampleRate: format.SampleRate,
				At:         StreamOffset(pos, format.SampleRate),
			}
			select {
			case blocks <- b:
			case <-quit:
				return
			}
			pos += int64(blockSize)
		}
	}
}
