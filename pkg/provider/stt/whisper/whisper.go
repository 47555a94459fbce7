// Package whisper provides whisper.cpp-backed speech recognition providers.
//
// Two variants exist:
//
//   - [Provider] talks to a running whisper-server binary over its REST API
//     (POST /inference). No CGO required.
//   - [NativeProvider] links whisper.cpp directly through its Go bindings and
//     runs inference in-process.
//
// whisper.cpp is a batch engine, so neither variant produces true streaming
// partials. A session buffers the segment's PCM as it arrives, runs one
// inference when CloseSend marks the segment complete, and emits the result
// as the session's single final transcript (mirrored once on the partials
// channel for activity indicators).
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tbjorklund/parlo/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the little-endian signed PCM audio
	// whisper.cpp expects.
	bitsPerSample = 16

	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// defaultMaxSegment bounds how much audio a single segment may buffer.
	// Segments longer than this are truncated before inference; the segmenter
	// normally cuts far earlier.
	defaultMaxSegment = 30 * time.Second

	// inferTimeout bounds a single inference call.
	inferTimeout = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server (e.g.,
// "base.en"). When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent with each inference
// request. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the default sample rate in Hz used when SegmentConfig
// leaves it zero. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithMaxSegmentDuration sets the cap on buffered audio per segment.
func WithMaxSegmentDuration(d time.Duration) Option {
	return func(p *Provider) {
		p.maxSegment = d
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper-server HTTP
// endpoint. Multiple segment sessions may be open simultaneously; each keeps
// its own buffer and goroutine.
type Provider struct {
	serverURL  string
	model      string
	language   string
	sampleRate int
	maxSegment time.Duration
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		maxSegment: defaultMaxSegment,
		httpClient: &http.Client{Timeout: inferTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartSegment opens a recognition session for one speech segment. No network
// connection is established until the segment completes.
func (p *Provider) StartSegment(ctx context.Context, cfg stt.SegmentConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := newSegmentSession(sr, ch, p.maxSegment, func(inferCtx context.Context, pcm []byte) (string, error) {
		return p.infer(inferCtx, pcm, sr, ch, lang)
	})
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

// infer encodes pcm as a WAV file and POSTs it to the whisper-server
// /inference endpoint as multipart/form-data.
func (p *Provider) infer(ctx context.Context, pcm []byte, sampleRate, channels int, language string) (string, error) {
	wav := encodeWAV(pcm, sampleRate, channels)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// ---- segmentSession ---------------------------------------------------------

// inferFunc runs batch recognition over a complete segment's PCM.
type inferFunc func(ctx context.Context, pcm []byte) (string, error)

// segmentSession buffers one segment's audio and runs a single inference once
// the segment is complete. It implements stt.SessionHandle and is shared by
// the HTTP and native providers; only the inferFunc differs.
//
// All buffer state is confined to the run goroutine.
type segmentSession struct {
	sampleRate int
	channels   int
	maxBytes   int
	infer      inferFunc

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	sendDone  chan struct{} // closed by CloseSend
	done      chan struct{} // closed by Close
	sendOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ stt.SessionHandle = (*segmentSession)(nil)

func newSegmentSession(sampleRate, channels int, maxSegment time.Duration, infer inferFunc) *segmentSession {
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return &segmentSession{
		sampleRate: sampleRate,
		channels:   channels,
		maxBytes:   int(maxSegment.Seconds() * float64(bytesPerSec)),
		infer:      infer,
		audioCh:    make(chan []byte, 256),
		partials:   make(chan stt.Transcript, 4),
		finals:     make(chan stt.Transcript, 1),
		sendDone:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SendAudio queues a PCM chunk for the segment buffer.
func (s *segmentSession) SendAudio(chunk []byte) error {
	select {
	case <-s.sendDone:
		return errors.New("whisper: segment audio already closed")
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

// Partials returns the interim transcript channel. The single final is
// mirrored here immediately before it is delivered on Finals.
func (s *segmentSession) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel carrying the segment's single final transcript.
func (s *segmentSession) Finals() <-chan stt.Transcript { return s.finals }

// CloseSend marks the end of the segment's audio and triggers inference.
func (s *segmentSession) CloseSend() error {
	s.sendOnce.Do(func() { close(s.sendDone) })
	return nil
}

// Close aborts the session. A final still in flight is abandoned.
func (s *segmentSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// run accumulates audio until CloseSend, then performs the inference and
// emits the final. Close at any point abandons the work.
func (s *segmentSession) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		truncated bool
	)

	accumulate := func(chunk []byte) {
		if s.maxBytes > 0 && len(buffer)+len(chunk) > s.maxBytes {
			if !truncated {
				truncated = true
				slog.Warn("whisper: segment exceeds maximum duration, truncating",
					"maxBytes", s.maxBytes)
			}
			return
		}
		buffer = append(buffer, chunk...)
	}

	// Phase 1: collect audio until the segment ends.
	collecting := true
	for collecting {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case chunk := <-s.audioCh:
			accumulate(chunk)
		case <-s.sendDone:
			collecting = false
		}
	}
	// Drain whatever arrived before CloseSend won the race.
	for {
		select {
		case chunk := <-s.audioCh:
			accumulate(chunk)
			continue
		default:
		}
		break
	}

	if len(buffer) == 0 {
		// Nothing to recognize; emit an empty final so the caller can
		// discard the turn instead of treating it as a failure.
		s.emit("")
		return
	}

	// Phase 2: single batch inference.
	inferCtx, cancel := context.WithTimeout(context.Background(), inferTimeout)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-inferCtx.Done():
		}
	}()

	text, err := s.infer(inferCtx, buffer)
	if err != nil {
		slog.Error("whisper: inference failed", "error", err)
		return
	}
	s.emit(text)
}

// emit publishes text as a partial and then as the segment's final.
func (s *segmentSession) emit(text string) {
	select {
	case s.partials <- stt.Transcript{Text: text}:
	default:
	}
	select {
	case s.finals <- stt.Transcript{Text: text, IsFinal: true}:
	case <-s.done:
	}
}
