package local

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/tbjorklund/parlo/pkg/audio"
)

func collectFrames(t *testing.T, src audio.Source) []audio.Frame {
	t.Helper()
	var frames []audio.Frame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-src.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, frame)
		case <-timeout:
			t.Fatal("frame channel did not close")
		}
	}
}

func TestSourceSplitsInputIntoFrames(t *testing.T) {
	t.Parallel()

	// 50 ms of audio at 16 kHz: two full 20 ms frames plus a 10 ms tail.
	in := bytes.NewReader(make([]byte, 1600))
	p, err := New(in, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src, _, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	frames := collectFrames(t, src)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if len(frames[0].Data) != 640 || len(frames[2].Data) != 320 {
		t.Fatalf("frame sizes = %d/%d/%d, want 640/640/320",
			len(frames[0].Data), len(frames[1].Data), len(frames[2].Data))
	}
	for i, frame := range frames {
		if frame.Seq != uint64(i) {
			t.Errorf("frame %d has seq %d", i, frame.Seq)
		}
		if frame.SampleRate != 16000 || frame.Channels != 1 {
			t.Errorf("frame %d format = %d Hz / %d ch", i, frame.SampleRate, frame.Channels)
		}
	}
}

func TestSourceRealtimePacingThrottlesDelivery(t *testing.T) {
	t.Parallel()

	// Five full 20 ms frames read from memory: without pacing they arrive
	// near-instantly, with pacing delivery takes at least ~100 ms wall clock.
	in := bytes.NewReader(make([]byte, 5*640))
	p, err := New(in, &bytes.Buffer{}, WithRealtimePacing())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src, _, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	start := time.Now()
	frames := collectFrames(t, src)
	elapsed := time.Since(start)

	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	if elapsed < 60*time.Millisecond {
		t.Fatalf("5 paced frames delivered in %v, want wall-clock pacing", elapsed)
	}
}

func TestSinkWritesThrough(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p, err := New(bytes.NewReader(nil), &out)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, snk, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pcm := []byte{1, 2, 3, 4}
	if err := snk.Write(context.Background(), pcm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(out.Bytes(), pcm) {
		t.Fatalf("output = %v, want %v", out.Bytes(), pcm)
	}

	if err := snk.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := snk.Write(context.Background(), pcm); err == nil {
		t.Fatal("Write succeeded on a closed sink")
	}
}

func TestNewRequiresStreams(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &bytes.Buffer{}); err == nil {
		t.Fatal("New accepted a nil reader")
	}
}
