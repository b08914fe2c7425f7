package audio

import (
	"context"
	"sync"
)

// FeedSource is a Source whose blocks are pushed by the host, for example a
// network client streaming PCM or a test.
type FeedSource struct {
	mu         sync.Mutex
	blocks     chan Block
	done       chan struct{}
	doneOnce   *sync.Once
	running    bool
	ended      bool
	err        error
	capacity   int
	sampleRate int

	// sendMu is held shared by pushers while sending and exclusively by End
	// while closing the channel.
	sendMu sync.RWMutex
}

// NewFeedSource creates a feed source whose channel buffers up to capacity blocks.
func NewFeedSource(capacity int) *FeedSource {
	return &FeedSource{capacity: max(0, capacity)}
}

// Supported always reports true; the host supplies the audio.
func (f *FeedSource) Supported() bool {
	return true
}

// Start opens a new delivery channel.
func (f *FeedSource) Start(sampleRate, blockSize int) error {
	if !validFormat(sampleRate, blockSize) {
		return ErrInvalidFormat
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return ErrAlreadyStarted
	}

	f.blocks = make(chan Block, f.capacity)
	f.done = make(chan struct{})
	f.doneOnce = &sync.Once{}
	f.ended = false
	f.err = nil
	f.sampleRate = sampleRate
	f.running = true
	return nil
}

// Stop releases pushers blocked on a full channel. The channel itself is left
// open; the consumer stops reading before calling Stop.
func (f *FeedSource) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return ErrNotStarted
	}
	f.running = false
	done, once := f.done, f.doneOnce
	f.mu.Unlock()

	once.Do(func() { close(done) })
	return nil
}

// Blocks returns the delivery channel.
func (f *FeedSource) Blocks() <-chan Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks
}

// Err returns the error passed to End.
func (f *FeedSource) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// SampleRate returns the rate requested by the current session.
func (f *FeedSource) SampleRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sampleRate
}

// Push hands a block to the consumer, waiting while the channel is full.
// Blocks without a sample rate inherit the session's.
func (f *FeedSource) Push(ctx context.Context, b Block) error {
	f.mu.Lock()
	if !f.running || f.ended {
		f.mu.Unlock()
		return ErrSourceStopped
	}
	blocks, done := f.blocks, f.done
	if b.SampleRate == 0 {
		b.SampleRate = f.sampleRate
	}
	f.mu.Unlock()

	f.sendMu.RLock()
	defer f.sendMu.RUnlock()

	select {
	case <-done:
		return ErrSourceStopped
	default:
	}

	select {
	case blocks <- b:
		return nil
	case <-done:
		return ErrSourceStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End closes the delivery channel as if the input ran out. err is reported by
// Err; nil means a clean end.
func (f *FeedSource) End(err error) {
	f.mu.Lock()
	if !f.running || f.ended {
		f.mu.Unlock()
		return
	}
	f.ended = true
	f.err = err
	done, once, blocks := f.done, f.doneOnce, f.blocks
	f.mu.Unlock()

	once.Do(func() { close(done) })

	f.sendMu.Lock()
	close(blocks)
	f.sendMu.Unlock()
}
