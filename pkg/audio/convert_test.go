package audio

import (
	"bytes"
	"testing"
)

func TestConvertFastPath(t *testing.T) {
	t.Parallel()

	c := &FormatConverter{Target: Format{SampleRate: 16000, Channels: 1}}
	in := Frame{Data: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1, Seq: 7}
	out := c.Convert(in)
	if !bytes.Equal(out.Data, in.Data) || out.Seq != 7 {
		t.Fatalf("fast path altered frame: %+v", out)
	}
}

func TestConvertOddByteCount(t *testing.T) {
	t.Parallel()

	c := &FormatConverter{Target: Format{SampleRate: 16000, Channels: 1}}
	out := c.Convert(Frame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if out.Data != nil {
		t.Fatalf("corrupt frame not dropped: %v", out.Data)
	}
}

func TestConvertStereoToMonoDownsample(t *testing.T) {
	t.Parallel()

	c := &FormatConverter{Target: Format{SampleRate: 16000, Channels: 1}}
	// 48kHz stereo input: 6 stereo frames of a constant sample value.
	in := make([]int16, 12)
	for i := range in {
		in[i] = 1000
	}
	out := c.Convert(Frame{Data: Int16sToBytes(in), SampleRate: 48000, Channels: 2})
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Fatalf("got %dHz %dch", out.SampleRate, out.Channels)
	}
	// 6 frames at 48k -> 2 mono samples at 16k.
	samples := BytesToInt16s(out.Data)
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	for i, s := range samples {
		if s != 1000 {
			t.Fatalf("sample %d: got %d, want 1000", i, s)
		}
	}
}

func TestMonoToStereoRoundTrip(t *testing.T) {
	t.Parallel()

	mono := Int16sToBytes([]int16{100, -200, 300})
	stereo := MonoToStereo(mono)
	back := StereoToMono(stereo)
	if !bytes.Equal(mono, back) {
		t.Fatalf("round trip mismatch: %v -> %v", mono, back)
	}
}

func TestStereoToMonoClamps(t *testing.T) {
	t.Parallel()

	// Both channels at max positive; average stays in range.
	stereo := Int16sToBytes([]int16{32767, 32767})
	mono := BytesToInt16s(StereoToMono(stereo))
	if mono[0] != 32767 {
		t.Fatalf("got %d, want 32767", mono[0])
	}
}

func TestResampleMono16Identity(t *testing.T) {
	t.Parallel()

	in := Int16sToBytes([]int16{1, 2, 3})
	if out := ResampleMono16(in, 16000, 16000); !bytes.Equal(in, out) {
		t.Fatal("same-rate resample must be identity")
	}
}

func TestResampleMono16Halves(t *testing.T) {
	t.Parallel()

	in := make([]int16, 480) // 10ms at 48kHz
	out := ResampleMono16(Int16sToBytes(in), 48000, 16000)
	if got := len(out) / 2; got != 160 {
		t.Fatalf("got %d samples, want 160", got)
	}
}

func TestInt16BytesRoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 32767, -32768}
	got := BytesToInt16s(Int16sToBytes(in))
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("index %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	f := Frame{Data: make([]byte, 640), SampleRate: 16000, Channels: 1}
	if got := f.Duration().Milliseconds(); got != 20 {
		t.Fatalf("got %dms, want 20ms", got)
	}
	if (Frame{}).Duration() != 0 {
		t.Fatal("malformed frame must report zero duration")
	}
}
