// Package config resolves runtime settings from defaults, .env files, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/0xlemi/tunecoach/internal/engine"
	"github.com/0xlemi/tunecoach/internal/onset"
	"github.com/0xlemi/tunecoach/internal/pitch"
)

// EnvPrefix is prepended to a flag name to form its environment variable:
// --buffer-size is TUNECOACH_BUFFER_SIZE.
const EnvPrefix = "TUNECOACH_"

var ErrInvalid = errors.New("invalid configuration")

// Config is the full set of runtime settings.
type Config struct {
	// Session
	BufferSize int
	SampleRate int

	// Analysis
	OnsetThreshold float64
	DebounceMs     int
	YinThreshold   float64
	MinFreq        float64
	MaxFreq        float64
	Tier           string

	// Engine
	StallFactor float64
	QueueSize   int
	EmitSamples bool

	// Capture
	Gain float64

	LogLevel string
	LogFile  string
	Addr     string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BufferSize:     2048,
		SampleRate:     44100,
		OnsetThreshold: 0.10,
		DebounceMs:     120,
		YinThreshold:   0.15,
		MinFreq:        60,
		MaxFreq:        1500,
		Tier:           engine.Native.String(),
		StallFactor:    5,
		QueueSize:      64,
		EmitSamples:    true,
		Gain:           1,
		LogLevel:       "info",
		Addr:           ":5000",
	}
}

// Bind registers every field as a flag on fs, using the current values as
// defaults.
func (c *Config) Bind(fs *pflag.FlagSet) {
	fs.IntVar(&c.BufferSize, "buffer-size", c.BufferSize, "samples per analysis block")
	fs.IntVar(&c.SampleRate, "sample-rate", c.SampleRate, "capture sample rate in Hz")
	fs.Float64Var(&c.OnsetThreshold, "onset-threshold", c.OnsetThreshold, "RMS rise that counts as an onset")
	fs.IntVar(&c.DebounceMs, "debounce-ms", c.DebounceMs, "minimum milliseconds between onsets")
	fs.Float64Var(&c.YinThreshold, "yin-threshold", c.YinThreshold, "YIN absolute threshold")
	fs.Float64Var(&c.MinFreq, "min-freq", c.MinFreq, "lowest reported frequency in Hz")
	fs.Float64Var(&c.MaxFreq, "max-freq", c.MaxFreq, "highest reported frequency in Hz")
	fs.StringVar(&c.Tier, "tier", c.Tier, "analysis tier: native or fallback")
	fs.Float64Var(&c.StallFactor, "stall-factor", c.StallFactor, "block intervals without input before a stall is reported")
	fs.IntVar(&c.QueueSize, "queue-size", c.QueueSize, "events buffered per subscriber")
	fs.BoolVar(&c.EmitSamples, "emit-samples", c.EmitSamples, "publish downsampled blocks for display")
	fs.Float64Var(&c.Gain, "gain", c.Gain, "input amplification for live capture")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "write logs to this file")
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address of the event bridge")
}

// Resolve loads envFiles (missing ones are skipped) and then fills every flag
// not given on the command line from its environment variable. Variables
// already set in the process win over the files.
func (c *Config) Resolve(fs *pflag.FlagSet, envFiles ...string) error {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		v, ok := os.LookupEnv(EnvName(f.Name))
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalid, EnvName(f.Name), err))
		}
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return c.Validate()
}

// EnvName maps a flag name to its environment variable.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	switch {
	case c.BufferSize <= 0:
		return fmt.Errorf("%w: buffer size %d", ErrInvalid, c.BufferSize)
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalid, c.SampleRate)
	case c.OnsetThreshold <= 0 || c.OnsetThreshold >= 1:
		return fmt.Errorf("%w: onset threshold %g", ErrInvalid, c.OnsetThreshold)
	case c.DebounceMs < 0:
		return fmt.Errorf("%w: debounce %dms", ErrInvalid, c.DebounceMs)
	case c.YinThreshold <= 0 || c.YinThreshold >= 1:
		return fmt.Errorf("%w: yin threshold %g", ErrInvalid, c.YinThreshold)
	case c.MinFreq <= 0 || c.MinFreq >= c.MaxFreq:
		return fmt.Errorf("%w: band [%g, %g] Hz", ErrInvalid, c.MinFreq, c.MaxFreq)
	case c.StallFactor <= 1:
		return fmt.Errorf("%w: stall factor %g", ErrInvalid, c.StallFactor)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue size %d", ErrInvalid, c.QueueSize)
	case c.Gain <= 0:
		return fmt.Errorf("%w: gain %g", ErrInvalid, c.Gain)
	}
	if _, err := engine.ParseTier(c.Tier); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}

// Engine converts the settings to an engine configuration.
func (c Config) Engine() (engine.Config, error) {
	tier, err := engine.ParseTier(c.Tier)
	if err != nil {
		return engine.Config{}, err
	}

	p := pitch.DefaultParams()
	p.MinFreq = c.MinFreq
	p.MaxFreq = c.MaxFreq
	p.Threshold = c.YinThreshold

	o := onset.DefaultParams()
	o.Threshold = c.OnsetThreshold
	o.Debounce = time.Duration(c.DebounceMs) * time.Millisecond

	return engine.Config{
		Tier:        tier,
		Pitch:       p,
		Onset:       o,
		StallFactor: c.StallFactor,
		EmitSamples: c.EmitSamples,
		QueueSize:   c.QueueSize,
	}, nil
}

// Session returns the start parameters.
func (c Config) Session() engine.SessionConfig {
	return engine.SessionConfig{SampleRate: c.SampleRate, BlockSize: c.BufferSize}
}
