package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/0xlemi/tunecoach/internal/engine"
)

func bound(t *testing.T, args ...string) (*Config, *pflag.FlagSet) {
	t.Helper()
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.Bind(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return &cfg, fs
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	ec, err := cfg.Engine()
	if err != nil {
		t.Fatal(err)
	}
	if ec.Tier != engine.Native {
		t.Errorf("tier = %s", ec.Tier)
	}
	if ec.Onset.Debounce != 120*time.Millisecond || ec.Onset.Threshold != 0.10 {
		t.Errorf("onset params = %+v", ec.Onset)
	}
	if ec.Pitch.MinFreq != 60 || ec.Pitch.MaxFreq != 1500 || ec.Pitch.Threshold != 0.15 {
		t.Errorf("pitch params = %+v", ec.Pitch)
	}
	if err := ec.Validate(); err != nil {
		t.Errorf("engine config invalid: %v", err)
	}

	sc := cfg.Session()
	if sc.SampleRate != 44100 || sc.BlockSize != 2048 {
		t.Errorf("session = %+v", sc)
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "TUNECOACH_BUFFER_SIZE=1024\nTUNECOACH_TIER=fallback\nTUNECOACH_DEBOUNCE_MS=90\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// Process environment beats the file, flags beat both.
	t.Setenv("TUNECOACH_DEBOUNCE_MS", "150")
	t.Setenv("TUNECOACH_SAMPLE_RATE", "48000")
	t.Setenv("TUNECOACH_BUFFER_SIZE", "")
	os.Unsetenv("TUNECOACH_BUFFER_SIZE")
	t.Setenv("TUNECOACH_TIER", "")
	os.Unsetenv("TUNECOACH_TIER")

	cfg, fs := bound(t, "--sample-rate", "22050")
	if err := cfg.Resolve(fs, envFile); err != nil {
		t.Fatal(err)
	}

	if cfg.BufferSize != 1024 {
		t.Errorf("buffer size = %d, want 1024 from .env", cfg.BufferSize)
	}
	if cfg.Tier != "fallback" {
		t.Errorf("tier = %q, want fallback from .env", cfg.Tier)
	}
	if cfg.DebounceMs != 150 {
		t.Errorf("debounce = %d, want 150 from the environment", cfg.DebounceMs)
	}
	if cfg.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050 from the flag", cfg.SampleRate)
	}
}

func TestResolveMissingEnvFile(t *testing.T) {
	cfg, fs := bound(t)
	if err := cfg.Resolve(fs, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file: %v", err)
	}
}

func TestResolveBadEnvValue(t *testing.T) {
	t.Setenv("TUNECOACH_QUEUE_SIZE", "lots")
	cfg, fs := bound(t)
	if err := cfg.Resolve(fs); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.BufferSize = 0 },
		func(c *Config) { c.SampleRate = -1 },
		func(c *Config) { c.OnsetThreshold = 0 },
		func(c *Config) { c.DebounceMs = -5 },
		func(c *Config) { c.YinThreshold = 1 },
		func(c *Config) { c.MinFreq = 2000 },
		func(c *Config) { c.Tier = "turbo" },
		func(c *Config) { c.StallFactor = 1 },
		func(c *Config) { c.QueueSize = 0 },
		func(c *Config) { c.Gain = 0 },
		func(c *Config) { c.LogLevel = "loud" },
	}
	for i, mutate := range bad {
		c := Default()
		mutate(&c)
		if err := c.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("case %d: got %v, want ErrInvalid", i, err)
		}
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("buffer-size"); got != "TUNECOACH_BUFFER_SIZE" {
		t.Errorf("EnvName = %s", got)
	}
}
