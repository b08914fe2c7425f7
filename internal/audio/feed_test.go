package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFeedSourceLifecycle(t *testing.T) {
	f := NewFeedSource(2)

	if err := f.Push(context.Background(), Block{}); !errors.Is(err, ErrSourceStopped) {
		t.Fatalf("push before start: got %v, want ErrSourceStopped", err)
	}
	if err := f.Start(0, 2048); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("start with zero rate: got %v, want ErrInvalidFormat", err)
	}
	if err := f.Start(44100, 2048); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.Start(44100, 2048); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: got %v, want ErrAlreadyStarted", err)
	}

	if err := f.Push(context.Background(), Block{Samples: []float32{1}}); err != nil {
		t.Fatalf("push: %v", err)
	}
	b := <-f.Blocks()
	if b.SampleRate != 44100 {
		t.Errorf("pushed block rate = %d, want session rate 44100", b.SampleRate)
	}

	if err := f.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := f.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("second stop: got %v, want ErrNotStarted", err)
	}
	if err := f.Push(context.Background(), Block{}); !errors.Is(err, ErrSourceStopped) {
		t.Fatalf("push after stop: got %v, want ErrSourceStopped", err)
	}
}

func TestFeedSourceStopReleasesBlockedPush(t *testing.T) {
	f := NewFeedSource(0)
	if err := f.Start(44100, 1024); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- f.Push(context.Background(), Block{Samples: []float32{1}})
	}()

	time.Sleep(10 * time.Millisecond)
	if err := f.Stop(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSourceStopped) {
			t.Fatalf("blocked push: got %v, want ErrSourceStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("push still blocked after stop")
	}
}

func TestFeedSourceEnd(t *testing.T) {
	f := NewFeedSource(4)
	if err := f.Start(8000, 256); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := f.Push(context.Background(), Block{Samples: make([]float32, 256)}); err != nil {
			t.Fatal(err)
		}
	}

	cause := errors.New("client went away")
	f.End(cause)

	n := 0
	for range f.Blocks() {
		n++
	}
	if n != 3 {
		t.Errorf("drained %d blocks after End, want 3", n)
	}
	if !errors.Is(f.Err(), cause) {
		t.Errorf("Err = %v, want %v", f.Err(), cause)
	}
	if err := f.Push(context.Background(), Block{}); !errors.Is(err, ErrSourceStopped) {
		t.Errorf("push after end: got %v, want ErrSourceStopped", err)
	}
}

func TestFeedSourcePushHonorsContext(t *testing.T) {
	f := NewFeedSource(0)
	if err := f.Start(44100, 1024); err != nil {
		t.Fatal(err)
	}
	defer f.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := f.Push(ctx, Block{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
}
