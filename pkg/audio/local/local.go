// Package local implements the audio.Platform interface over raw PCM byte
// streams, typically stdin/stdout wired to sox or a WAV file. It exists for
// the console mode: running the full pipeline without a network transport.
package local

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tbjorklund/parlo/pkg/audio"
)

// Option is a functional option for configuring the local Platform.
type Option func(*Platform)

// WithSampleRate sets the PCM sample rate of both streams. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Platform) {
		p.sampleRate = rate
	}
}

// WithFrameDuration sets the duration of each frame read from the input.
// Defaults to 20 ms.
func WithFrameDuration(d time.Duration) Option {
	return func(p *Platform) {
		p.frameDur = d
	}
}

// WithRealtimePacing makes the source deliver frames at wall-clock rate even
// when the reader (e.g. a file) can supply them faster. Without it, frames are
// delivered as fast as the reader produces them, which is what tests want.
func WithRealtimePacing() Option {
	return func(p *Platform) {
		p.realtime = true
	}
}

// Platform adapts an io.Reader/io.Writer pair of raw little-endian 16-bit
// mono PCM into the audio Source/Sink interfaces. It implements
// audio.Platform.
type Platform struct {
	in  io.Reader
	out io.Writer

	sampleRate int
	frameDur   time.Duration
	realtime   bool
}

var _ audio.Platform = (*Platform)(nil)

// New creates a local Platform reading mic audio from in and writing playback
// audio to out.
func New(in io.Reader, out io.Writer, opts ...Option) (*Platform, error) {
	if in == nil || out == nil {
		return nil, errors.New("local: in and out must not be nil")
	}
	p := &Platform{
		in:         in,
		out:        out,
		sampleRate: 16000,
		frameDur:   20 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Open starts the reader goroutine and returns the Source/Sink pair.
func (p *Platform) Open(ctx context.Context) (audio.Source, audio.Sink, error) {
	frameBytes := int(p.frameDur.Seconds() * float64(p.sampleRate) * 2)
	src := &source{
		in:         p.in,
		frames:     make(chan audio.Frame, 64),
		sampleRate: p.sampleRate,
		frameBytes: frameBytes,
		frameDur:   p.frameDur,
		realtime:   p.realtime,
		done:       make(chan struct{}),
	}
	snk := &sink{out: p.out, sampleRate: p.sampleRate}
	go src.readLoop()
	return src, snk, nil
}

// ── Source ──

type source struct {
	in         io.Reader
	frames     chan audio.Frame
	sampleRate int
	frameBytes int
	frameDur   time.Duration
	realtime   bool

	done chan struct{}
	once sync.Once
}

var _ audio.Source = (*source)(nil)

func (s *source) Frames() <-chan audio.Frame { return s.frames }

func (s *source) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *source) readLoop() {
	defer close(s.frames)

	var (
		seq       uint64
		timestamp time.Duration
		next      = time.Now()
	)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		buf := make([]byte, s.frameBytes)
		n, err := io.ReadFull(s.in, buf)
		if err != nil {
			// A trailing short read still makes a valid (shorter) frame.
			if n > 0 && (errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)) {
				if n%2 == 1 {
					n--
				}
				if n > 0 {
					s.deliver(audio.Frame{Data: buf[:n], SampleRate: s.sampleRate, Channels: 1, Seq: seq, Timestamp: timestamp})
				}
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("local: input read failed, ending stream", "error", err)
			}
			return
		}

		if s.realtime {
			next = next.Add(s.frameDur)
			if d := time.Until(next); d > 0 {
				select {
				case <-time.After(d):
				case <-s.done:
					return
				}
			}
		}

		frame := audio.Frame{Data: buf, SampleRate: s.sampleRate, Channels: 1, Seq: seq, Timestamp: timestamp}
		if !s.deliver(frame) {
			return
		}
		seq++
		timestamp += frame.Duration()
	}
}

func (s *source) deliver(frame audio.Frame) bool {
	select {
	case s.frames <- frame:
		return true
	case <-s.done:
		return false
	}
}

// ── Sink ──

// sink writes PCM straight through to the output writer. Flush is a no-op at
// the transport level: with a console writer there is no transport-side
// buffer to discard, and the coordinator already stops writing on barge-in.
type sink struct {
	mu         sync.Mutex
	out        io.Writer
	sampleRate int
	closed     bool
}

var _ audio.Sink = (*sink)(nil)

func (s *sink) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("local: sink is closed")
	}
	_, err := s.out.Write(pcm)
	return err
}

func (s *sink) Flush() {}

func (s *sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
