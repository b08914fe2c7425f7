package audio

import (
	"math"
	"testing"
	"time"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"zeros", make([]float64, 64), 0},
		{"dc", []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"alternating", []float64{1, -1, 1, -1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RMS(tt.in); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RMS = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestDownsample(t *testing.T) {
	tests := []struct {
		n        int
		wantLen  int
		wantRate int
	}{
		{512, 512, 44100},
		{1024, 1024, 44100},
		{2048, 1024, 22050},
		{4096, 1024, 11025},
		{3000, 1500, 22050},
	}

	for _, tt := range tests {
		b := Block{Samples: make([]float32, tt.n), SampleRate: 44100}
		for i := range b.Samples {
			b.Samples[i] = float32(i)
		}

		got := Downsample(b)
		if got.Len() != tt.wantLen {
			t.Errorf("n=%d: len = %d, want %d", tt.n, got.Len(), tt.wantLen)
		}
		if got.Len() > b.Len() {
			t.Errorf("n=%d: downsampled block grew", tt.n)
		}
		if got.SampleRate != tt.wantRate {
			t.Errorf("n=%d: rate = %d, want %d", tt.n, got.SampleRate, tt.wantRate)
		}

		k := DownsampleFactor(tt.n)
		for i, s := range got.Samples {
			if s != float32(i*k) {
				t.Fatalf("n=%d: sample %d = %v, want %v", tt.n, i, s, float32(i*k))
			}
		}
	}
}

func TestBlockFloat64(t *testing.T) {
	b := Block{Samples: []float32{0.25, -0.5, 1}}
	got := b.Float64()
	want := []float64{0.25, -0.5, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestStreamOffset(t *testing.T) {
	tests := []struct {
		samples int64
		rate    int
		want    time.Duration
	}{
		{0, 44100, 0},
		{44100, 44100, time.Second},
		{2048, 44100, 46439909 * time.Nanosecond},
		{22050, 44100, 500 * time.Millisecond},
		{100, 0, 0},
	}
	for _, tt := range tests {
		if got := StreamOffset(tt.samples, tt.rate); got != tt.want {
			t.Errorf("StreamOffset(%d, %d) = %v, want %v", tt.samples, tt.rate, got, tt.want)
		}
	}
}
