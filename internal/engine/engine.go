// Package engine runs a capture session: it pulls blocks from an audio source,
// estimates pitch and onsets on a single goroutine and publishes the results to
// subscribers.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mdobak/go-xerrors"

	"github.com/0xlemi/tunecoach/internal/audio"
	"github.com/0xlemi/tunecoach/internal/onset"
	"github.com/0xlemi/tunecoach/internal/pitch"
)

// Errors
var (
	ErrCaptureUnavailable = errors.New("capture unavailable")
	ErrAlreadyRunning     = errors.New("engine already running")
	ErrInvalidConfig      = errors.New("invalid engine configuration")
)

const (
	defaultQueueSize   = 64
	defaultStallFactor = 5
)

// State is the lifecycle position of the engine.
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// Config holds the engine tunables. They are fixed for the life of a session.
type Config struct {
	Tier        Tier
	Pitch       pitch.Params
	Onset       onset.Params
	StallFactor float64 // stall timeout as a multiple of the block interval
	EmitSamples bool    // publish SamplesBatch for every block
	QueueSize   int     // per-subscription queue length
}

// DefaultConfig returns the native tier with default tunables.
func DefaultConfig() Config {
	return Config{
		Tier:        Native,
		Pitch:       pitch.DefaultParams(),
		Onset:       onset.DefaultParams(),
		StallFactor: defaultStallFactor,
		EmitSamples: true,
		QueueSize:   defaultQueueSize,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Tier.valid() {
		return fmt.Errorf("%w: unknown tier %d", ErrInvalidConfig, int(c.Tier))
	}
	if err := c.Pitch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Onset.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.StallFactor <= 1 {
		return fmt.Errorf("%w: stall factor %g must exceed 1", ErrInvalidConfig, c.StallFactor)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue size %d", ErrInvalidConfig, c.QueueSize)
	}
	return nil
}

// SessionConfig is what start needs from the caller.
type SessionConfig struct {
	SampleRate int
	BlockSize  int
}

// Interval is the expected time between blocks.
func (sc SessionConfig) Interval() time.Duration {
	return time.Duration(float64(sc.BlockSize) / float64(sc.SampleRate) * float64(time.Second))
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces time.Now for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// session is the state of one capture run. Everything below the channels is
// touched only by the processing goroutine, except ended and endErr which are
// read after done is closed.
type session struct {
	id       uint64
	cfg      SessionConfig
	stop     chan struct{}
	done     chan struct{}
	released chan struct{}

	started   time.Time
	timed     bool // blocks carry their stream offset
	estimator pitch.Estimator
	detector  onset.Detector
	onset     onset.State

	ended  bool
	endErr error
}

// Engine owns the capture lifecycle of one source.
type Engine struct {
	src audio.Source
	cfg Config
	log *slog.Logger
	now func() time.Time
	bus *bus

	mu     sync.Mutex
	state  State
	sess   *session
	nextID uint64
}

// New creates an idle engine for src.
func New(src audio.Source, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		src: src,
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now: time.Now,
		bus: newBus(cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers fn for the given kinds, or for every kind when none are
// given. Events reach one subscription in publication order.
func (e *Engine) Subscribe(fn func(Event), kinds ...Kind) *Subscription {
	return e.bus.subscribe(fn, kinds...)
}

// OnPitch subscribes to pitch detections.
func (e *Engine) OnPitch(fn func(PitchDetected)) *Subscription {
	return e.Subscribe(func(ev Event) { fn(ev.(PitchDetected)) }, KindPitch)
}

// OnOnset subscribes to onsets.
func (e *Engine) OnOnset(fn func(OnsetDetected)) *Subscription {
	return e.Subscribe(func(ev Event) { fn(ev.(OnsetDetected)) }, KindOnset)
}

// OnSamples subscribes to display batches.
func (e *Engine) OnSamples(fn func(SamplesBatch)) *Subscription {
	return e.Subscribe(func(ev Event) { fn(ev.(SamplesBatch)) }, KindSamples)
}

// OnStall subscribes to stall notifications.
func (e *Engine) OnStall(fn func(StreamStalled)) *Subscription {
	return e.Subscribe(func(ev Event) { fn(ev.(StreamStalled)) }, KindStalled)
}

// Start acquires the source and begins a session. On failure the engine is
// left Idle, except for ErrAlreadyRunning which changes nothing.
func (e *Engine) Start(sc SessionConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Idle {
		return fmt.Errorf("%w: engine is %s", ErrAlreadyRunning, e.state)
	}
	if sc.SampleRate <= 0 || sc.BlockSize <= 0 {
		return fmt.Errorf("%w: sample rate %d, block size %d", ErrInvalidConfig, sc.SampleRate, sc.BlockSize)
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	e.state = Starting

	if !e.src.Supported() {
		e.state = Idle
		return xerrors.New(fmt.Errorf("%w: %w", ErrCaptureUnavailable, audio.ErrUnsupported))
	}
	if err := e.src.Start(sc.SampleRate, sc.BlockSize); err != nil {
		e.state = Idle
		e.log.Warn("capture start failed", slog.Any("error", err))
		return xerrors.New(fmt.Errorf("%w: %w", ErrCaptureUnavailable, err))
	}

	e.nextID++
	s := &session{
		id:        e.nextID,
		cfg:       sc,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		released:  make(chan struct{}),
		started:   e.now(),
		timed:     isTimed(e.src),
		estimator: e.cfg.Tier.estimator(e.cfg.Pitch),
		detector:  e.cfg.Tier.detector(e.cfg.Onset),
	}

	e.bus.activate(s.id)
	e.sess = s
	e.state = Running
	go e.run(s, e.src.Blocks())

	e.log.Info("capture session started",
		slog.Uint64("session", s.id),
		slog.String("tier", e.cfg.Tier.String()),
		slog.Int("sample_rate", sc.SampleRate),
		slog.Int("block_size", sc.BlockSize))
	return nil
}

// Stop ends the session and releases the source. It is safe from any
// goroutine, listeners included. Once it returns no event of the session is
// handed to a listener, including events still queued from a session that
// ended on its own. A hand-off made before that may still be running.
func (e *Engine) Stop() error {
	e.mu.Lock()
	s := e.sess
	if s == nil {
		e.bus.deactivate()
		e.mu.Unlock()
		return nil
	}
	return e.stopLocked(s, true)
}

// Close stops the engine and removes every subscription.
func (e *Engine) Close() error {
	err := e.Stop()
	e.bus.close()
	return err
}

// stopLocked is entered with mu held and releases it. A requested stop
// discards whatever the session still has queued; the end of input does not,
// so subscribers see every result before CaptureEnded.
func (e *Engine) stopLocked(s *session, requested bool) error {
	if e.state == Stopping {
		e.mu.Unlock()
		<-s.released
		if requested {
			e.bus.retire(s.id)
		}
		return nil
	}
	e.state = Stopping
	close(s.stop)
	e.mu.Unlock()

	<-s.done
	if requested {
		e.bus.retire(s.id)
	}
	err := e.src.Stop()

	e.mu.Lock()
	e.state = Idle
	e.sess = nil
	e.mu.Unlock()
	close(s.released)

	if s.ended {
		e.bus.publish(s.id, CaptureEnded{Err: s.endErr})
	}
	e.log.Info("capture session stopped", slog.Uint64("session", s.id), slog.Bool("source_ended", s.ended))

	if err != nil {
		return xerrors.New(fmt.Errorf("stop capture: %w", err))
	}
	return nil
}

// endSession stops s after its source closed, unless it was already replaced.
func (e *Engine) endSession(s *session) {
	e.mu.Lock()
	if e.sess != s {
		e.mu.Unlock()
		return
	}
	if err := e.stopLocked(s, false); err != nil {
		e.log.Warn("release after end of input", slog.Any("error", err))
	}
}

// run is the processing loop. It is the only reader of the block channel and
// the only writer of the session's detector state.
func (e *Engine) run(s *session, blocks <-chan audio.Block) {
	defer close(s.done)

	timeout := time.Duration(e.cfg.StallFactor * float64(s.cfg.Interval()))
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var stalledAt time.Duration
	stalled := false

	for {
		select {
		case <-s.stop:
			return

		case b, ok := <-blocks:
			if !ok {
				s.ended = true
				s.endErr = e.src.Err()
				go e.endSession(s)
				return
			}
			// A stop that raced with this block wins.
			select {
			case <-s.stop:
				return
			default:
			}

			if stalled {
				stalled = false
				now := e.elapsed(s)
				e.bus.publish(s.id, StreamRecovered{At: now, Outage: now - stalledAt})
				e.log.Info("capture stream recovered", slog.Uint64("session", s.id))
			}
			e.process(s, b)
			timer.Reset(timeout)

		case <-timer.C:
			if !stalled {
				stalled = true
				stalledAt = e.elapsed(s)
				e.bus.publish(s.id, StreamStalled{At: stalledAt, Waited: timeout})
				e.log.Warn("capture stream stalled",
					slog.Uint64("session", s.id),
					slog.Duration("waited", timeout))
			}
		}
	}
}

// process analyzes one block. Pitch and onset are independent results of the
// same block.
func (e *Engine) process(s *session, b audio.Block) {
	if b.SampleRate <= 0 {
		b.SampleRate = s.cfg.SampleRate
	}
	now := e.elapsed(s)
	if s.timed {
		now = b.At
	}

	if d, ok := s.estimator.Estimate(b); ok {
		if note, err := pitch.NoteFromFrequency(d.Frequency); err == nil {
			e.bus.publish(s.id, PitchDetected{
				Frequency:  d.Frequency,
				Confidence: d.Confidence,
				Note:       note,
				CentsOff:   note.CentsOff(d.Frequency),
				At:         now,
			})
		}
	}

	if ev, ok := s.detector.Detect(b, now, &s.onset); ok {
		e.bus.publish(s.id, OnsetDetected{At: ev.At})
	}

	if e.cfg.EmitSamples {
		ds := audio.Downsample(b)
		e.bus.publish(s.id, SamplesBatch{Samples: ds.Samples, SampleRate: ds.SampleRate})
	}
}

func isTimed(src audio.Source) bool {
	t, ok := src.(audio.Timed)
	return ok && t.Timed()
}

func (e *Engine) elapsed(s *session) time.Duration {
	return e.now().Sub(s.started)
}
