package onset

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the onsets seen by a Meter.
type Stats struct {
	Count        int
	MeanInterval time.Duration
	Jitter       time.Duration // population standard deviation of the intervals
}

// Meter accumulates onset times and reports rhythm statistics. It keeps at most
// window intervals; zero keeps all of them. Safe for concurrent use.
type Meter struct {
	mu        sync.Mutex
	window    int
	count     int
	last      time.Duration
	intervals []float64 // milliseconds
}

// NewMeter creates a meter over the last window intervals.
func NewMeter(window int) *Meter {
	return &Meter{window: window}
}

// Add records an onset. Timestamps that go backwards start a new run.
func (m *Meter) Add(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count > 0 && e.At >= m.last {
		m.intervals = append(m.intervals, float64(e.At-m.last)/float64(time.Millisecond))
		if m.window > 0 && len(m.intervals) > m.window {
			m.intervals = m.intervals[len(m.intervals)-m.window:]
		}
	}
	m.count++
	m.last = e.At
}

// Reset forgets everything.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count = 0
	m.last = 0
	m.intervals = m.intervals[:0]
}

// Stats returns the current summary. Interval figures are zero until two
// onsets have been seen.
func (m *Meter) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Count: m.count}
	if len(m.intervals) == 0 {
		return s
	}
	mean, std := stat.PopMeanStdDev(m.intervals, nil)
	s.MeanInterval = time.Duration(mean * float64(time.Millisecond))
	s.Jitter = time.Duration(std * float64(time.Millisecond))
	return s
}

// BPM converts the mean interval to beats per minute, zero when unknown.
func (s Stats) BPM() float64 {
	if s.MeanInterval <= 0 {
		return 0
	}
	return float64(time.Minute) / float64(s.MeanInterval)
}
