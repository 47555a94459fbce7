// Package neutts provides a tts.Provider backed by a locally running NeuTTS
// Air server.
//
// The server performs voice-cloned synthesis: each request carries the
// sentence text plus the voice profile's reference recording and transcript,
// and the response is a WAV file. Because the server is a batch engine (one
// HTTP call per sentence), SynthesizeStream runs a small pool of concurrent
// requests to hide per-sentence latency; chunks are emitted as they complete
// and carry their sentence Seq so the caller can restore order.
//
// Typical usage:
//
//	p, err := neutts.New("http://localhost:8880",
//	    neutts.WithOutputSampleRate(16000),
//	)
//	chunks, err := p.SynthesizeStream(ctx, sentences, voice)
package neutts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tbjorklund/parlo/pkg/audio"
	"github.com/tbjorklund/parlo/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	ttsEndpoint    = "/v1/tts"
	defaultTimeout = 30 * time.Second

	// lookahead controls how many synthesis requests may be in flight at
	// once. Higher values reduce perceived latency at the cost of server
	// load.
	lookahead = 4

	// chunkChanBuf is the buffer depth of the returned chunk channel.
	chunkChanBuf = 16
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithOutputSampleRate resamples synthesized PCM to the given rate. When 0
// (default), PCM is emitted at the model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// WithLookahead overrides the number of concurrent synthesis requests.
func WithLookahead(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.lookahead = n
		}
	}
}

// Provider implements tts.Provider backed by a NeuTTS Air server. Safe for
// concurrent use; multiple SynthesizeStream calls may run in parallel.
type Provider struct {
	serverURL  string
	httpClient *http.Client
	outputRate int
	lookahead  int
}

// New creates a Provider targeting the NeuTTS Air server at serverURL (e.g.,
// "http://localhost:8880"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("neutts: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		lookahead:  lookahead,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /v1/tts.
type ttsRequest struct {
	Text     string `json:"text"`
	RefText  string `json:"ref_text"`
	RefAudio string `json:"ref_audio"` // base64-encoded WAV
}

// SynthesizeStream consumes sentences and emits one chunk per sentence as
// synthesis completes. Up to the configured lookahead of HTTP requests run
// concurrently; completion order is not sentence order.
func (p *Provider) SynthesizeStream(ctx context.Context, sentences <-chan tts.Sentence, voice tts.VoiceProfile) (<-chan tts.Chunk, error) {
	if len(voice.RefAudio) == 0 || voice.RefText == "" {
		return nil, errors.New("neutts: voice profile must carry reference audio and text")
	}
	refAudio := base64.StdEncoding.EncodeToString(voice.RefAudio)

	chunks := make(chan tts.Chunk, chunkChanBuf)

	go func() {
		defer close(chunks)

		var wg sync.WaitGroup
		// sem caps in-flight synthesis requests.
		sem := make(chan struct{}, p.lookahead)

		for {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			case sentence, ok := <-sentences:
				if !ok {
					wg.Wait()
					return
				}
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					wg.Wait()
					return
				}
				wg.Add(1)
				go func(s tts.Sentence) {
					defer wg.Done()
					defer func() { <-sem }()

					pcm, err := p.synthesize(ctx, s.Text, refAudio, voice.RefText)
					out := tts.Chunk{Seq: s.Seq, PCM: pcm, Err: err}
					select {
					case chunks <- out:
					case <-ctx.Done():
					}
				}(sentence)
			}
		}
	}()

	return chunks, nil
}

// synthesize performs a single POST /v1/tts call and returns raw mono PCM
// with the WAV header stripped, resampled to the output rate if configured.
func (p *Provider) synthesize(ctx context.Context, text, refAudio, refText string) ([]byte, error) {
	body, err := json.Marshal(ttsRequest{
		Text:     text,
		RefText:  refText,
		RefAudio: refAudio,
	})
	if err != nil {
		return nil, fmt.Errorf("neutts: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("neutts: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neutts: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("neutts: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("neutts: read WAV response: %w", err)
	}

	info, err := tts.ParseWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("neutts: %w", err)
	}

	pcm := wav[info.DataOffset:]
	if info.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if p.outputRate > 0 && info.SampleRate != p.outputRate {
		pcm = audio.ResampleMono16(pcm, info.SampleRate, p.outputRate)
	}
	return pcm, nil
}
