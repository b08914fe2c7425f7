package onset

import (
	"math"
	"testing"
	"time"
)

func TestMeterEmpty(t *testing.T) {
	m := NewMeter(0)
	if s := m.Stats(); s != (Stats{}) {
		t.Errorf("empty meter: %+v", s)
	}

	m.Add(Event{At: time.Second})
	s := m.Stats()
	if s.Count != 1 || s.MeanInterval != 0 || s.Jitter != 0 {
		t.Errorf("one onset: %+v", s)
	}
	if s.BPM() != 0 {
		t.Errorf("BPM = %g, want 0", s.BPM())
	}
}

func TestMeterSteadyBeat(t *testing.T) {
	m := NewMeter(0)
	for i := 0; i < 5; i++ {
		m.Add(Event{At: time.Duration(i) * 500 * time.Millisecond})
	}

	s := m.Stats()
	if s.Count != 5 {
		t.Errorf("count = %d, want 5", s.Count)
	}
	if s.MeanInterval != 500*time.Millisecond {
		t.Errorf("mean = %v, want 500ms", s.MeanInterval)
	}
	if s.Jitter != 0 {
		t.Errorf("jitter = %v, want 0", s.Jitter)
	}
	if math.Abs(s.BPM()-120) > 1e-9 {
		t.Errorf("BPM = %g, want 120", s.BPM())
	}
}

func TestMeterJitter(t *testing.T) {
	m := NewMeter(0)
	// Intervals 400 and 600 ms: mean 500, population stddev 100.
	for _, ms := range []int{0, 400, 1000} {
		m.Add(Event{At: time.Duration(ms) * time.Millisecond})
	}

	s := m.Stats()
	if d := s.MeanInterval - 500*time.Millisecond; d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("mean = %v, want 500ms", s.MeanInterval)
	}
	if d := s.Jitter - 100*time.Millisecond; d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("jitter = %v, want 100ms", s.Jitter)
	}
}

func TestMeterWindow(t *testing.T) {
	m := NewMeter(2)
	for _, ms := range []int{0, 1000, 1300, 1600} {
		m.Add(Event{At: time.Duration(ms) * time.Millisecond})
	}

	s := m.Stats()
	if s.Count != 4 {
		t.Errorf("count = %d, want 4", s.Count)
	}
	if d := s.MeanInterval - 300*time.Millisecond; d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("windowed mean = %v, want 300ms", s.MeanInterval)
	}
}

func TestMeterReset(t *testing.T) {
	m := NewMeter(0)
	m.Add(Event{At: 0})
	m.Add(Event{At: time.Second})
	m.Reset()

	if s := m.Stats(); s.Count != 0 || s.MeanInterval != 0 {
		t.Errorf("after reset: %+v", s)
	}

	// A restarted session begins at zero again.
	m.Add(Event{At: 0})
	m.Add(Event{At: 250 * time.Millisecond})
	if s := m.Stats(); s.MeanInterval != 250*time.Millisecond {
		t.Errorf("mean = %v, want 250ms", s.MeanInterval)
	}
}
