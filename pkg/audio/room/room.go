// Package room implements the audio.Platform interface over a WebSocket audio
// room. Audio travels as Opus packets in binary WebSocket messages at 48 kHz
// mono with 20 ms frames; the package transcodes between the wire format and
// the 16 kHz mono PCM the pipeline consumes.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/tbjorklund/parlo/pkg/audio"
)

// The room speaks 48 kHz mono Opus at 20 ms frame size.
const (
	wireSampleRate  = 48000
	wireChannels    = 1
	wireFrameMs     = 20
	// wireFrameSize is the number of samples per channel per 20 ms frame.
	wireFrameSize = wireSampleRate * wireFrameMs / 1000 // 960
	// wireFrameBytes is the byte length of one wire frame of int16 PCM.
	wireFrameBytes = wireFrameSize * wireChannels * 2

	// maxOpusPacket bounds the outbound Opus packet buffer.
	maxOpusPacket = 4000
)

// Option is a functional option for configuring the room Platform.
type Option func(*Platform)

// WithToken sets the bearer token sent during the WebSocket handshake.
func WithToken(token string) Option {
	return func(p *Platform) {
		p.token = token
	}
}

// WithPipelineRate sets the PCM sample rate delivered to and accepted from the
// pipeline. Defaults to 16000.
func WithPipelineRate(rate int) Option {
	return func(p *Platform) {
		p.pipelineRate = rate
	}
}

// Platform dials a WebSocket audio room and exposes it as an audio Source and
// Sink. It implements audio.Platform.
type Platform struct {
	url          string
	token        string
	pipelineRate int
}

var _ audio.Platform = (*Platform)(nil)

// New creates a room Platform for the given WebSocket URL (ws:// or wss://).
func New(url string, opts ...Option) (*Platform, error) {
	if url == "" {
		return nil, errors.New("room: url must not be empty")
	}
	p := &Platform{
		url:          url,
		pipelineRate: 16000,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Open dials the room and returns the live Source/Sink pair. ctx governs the
// dial only; the connection outlives it until both sides are closed.
func (p *Platform) Open(ctx context.Context) (audio.Source, audio.Sink, error) {
	headers := http.Header{}
	if p.token != "" {
		headers.Set("Authorization", "Bearer "+p.token)
	}

	conn, _, err := websocket.Dial(ctx, p.url, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("room: dial %s: %w", p.url, err)
	}
	// Opus packets are small; the default read limit is fine, but raise it to
	// tolerate batched packets from the room server.
	conn.SetReadLimit(1 << 20)

	dec, err := gopus.NewDecoder(wireSampleRate, wireChannels)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "decoder init failed")
		return nil, nil, fmt.Errorf("room: create opus decoder: %w", err)
	}
	enc, err := gopus.NewEncoder(wireSampleRate, wireChannels, gopus.Audio)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "encoder init failed")
		return nil, nil, fmt.Errorf("room: create opus encoder: %w", err)
	}

	shared := &sharedConn{conn: conn}

	src := &source{
		shared: shared,
		dec:    dec,
		frames: make(chan audio.Frame, 64),
		conv:   &audio.FormatConverter{Target: audio.Format{SampleRate: p.pipelineRate, Channels: 1}},
		done:   make(chan struct{}),
	}
	snk := &sink{
		shared:       shared,
		enc:          enc,
		pipelineRate: p.pipelineRate,
		done:         make(chan struct{}),
	}
	snk.cond = sync.NewCond(&snk.mu)

	go src.readLoop()
	go snk.writeLoop()

	return src, snk, nil
}

// sharedConn tracks how many of the Source/Sink pair are still open and closes
// the underlying WebSocket only once both are done.
type sharedConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed int
}

func (s *sharedConn) release(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	if s.closed == 2 {
		s.conn.Close(websocket.StatusNormalClosure, reason)
	}
}

// ── Source ──

// source reads Opus packets from the room, decodes them, and delivers pipeline
// frames. Implements audio.Source.
type source struct {
	shared *sharedConn
	dec    *gopus.Decoder
	frames chan audio.Frame
	conv   *audio.FormatConverter

	done chan struct{}
	once sync.Once

	seq       uint64
	timestamp time.Duration
}

var _ audio.Source = (*source)(nil)

func (s *source) Frames() <-chan audio.Frame { return s.frames }

func (s *source) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.shared.release("source closed")
	})
	return nil
}

// readLoop runs until the connection fails or Close is called. The frames
// channel is closed on exit so consumers observe the end of the stream.
func (s *source) readLoop() {
	defer close(s.frames)

	ctx := context.Background()
	for {
		typ, packet, err := s.shared.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Clean shutdown.
			default:
				slog.Warn("room: read failed, ending inbound stream", "error", err)
				s.Close()
			}
			return
		}
		if typ != websocket.MessageBinary || len(packet) == 0 {
			continue
		}

		pcm, err := s.dec.Decode(packet, wireFrameSize, false)
		if err != nil {
			slog.Warn("room: opus decode failed, skipping packet", "error", err)
			continue
		}

		wire := audio.Frame{
			Data:       audio.Int16sToBytes(pcm),
			SampleRate: wireSampleRate,
			Channels:   wireChannels,
			Seq:        s.seq,
			Timestamp:  s.timestamp,
		}
		frame := s.conv.Convert(wire)
		if len(frame.Data) == 0 {
			continue
		}
		s.seq++
		s.timestamp += frame.Duration()

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

// ── Sink ──

// sink buffers outbound PCM, transcodes it to wire frames, and sends Opus
// packets paced at real time. Implements audio.Sink.
type sink struct {
	shared       *sharedConn
	enc          *gopus.Encoder
	pipelineRate int

	mu      sync.Mutex
	cond    *sync.Cond
	pending []byte // 48 kHz mono PCM awaiting encoding
	closed  bool

	done chan struct{}
	once sync.Once
}

var _ audio.Sink = (*sink)(nil)

// Write converts the pipeline PCM to the wire rate and appends it to the
// pending buffer. Returns once the data is queued.
func (s *sink) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wire := audio.ResampleMono16(pcm, s.pipelineRate, wireSampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("room: sink is closed")
	}
	s.pending = append(s.pending, wire...)
	s.cond.Broadcast()
	return nil
}

// Flush discards all buffered-but-unsent audio. Frames already on the wire
// cannot be recalled; the room server's jitter buffer is at most one frame
// deep, so playback stops within ~20 ms.
func (s *sink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]
}

func (s *sink) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
		close(s.done)
		s.shared.release("sink closed")
	})
	return nil
}

// writeLoop encodes and sends one wire frame per tick so that playback is
// paced at real time. Pacing is what makes Flush effective: audio not yet due
// is still in the pending buffer when a barge-in arrives.
func (s *sink) writeLoop() {
	ticker := time.NewTicker(wireFrameMs * time.Millisecond)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		frame, ok := s.takeFrame()
		if !ok {
			continue
		}

		packet, err := s.enc.Encode(audio.BytesToInt16s(frame), wireFrameSize, maxOpusPacket)
		if err != nil {
			slog.Warn("room: opus encode failed, dropping frame", "error", err)
			continue
		}
		if err := s.shared.conn.Write(ctx, websocket.MessageBinary, packet); err != nil {
			select {
			case <-s.done:
			default:
				slog.Warn("room: write failed, closing sink", "error", err)
				s.Close()
			}
			return
		}
	}
}

// takeFrame removes one full wire frame from the pending buffer, zero-padding
// a final partial frame. Returns false when nothing is pending.
func (s *sink) takeFrame() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, false
	}
	frame := make([]byte, wireFrameBytes)
	n := copy(frame, s.pending)
	if n >= len(s.pending) {
		s.pending = s.pending[:0]
	} else {
		s.pending = s.pending[n:]
	}
	return frame, true
}
