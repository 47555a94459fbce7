// Package app wires all Parlo subsystems into a running voice session.
//
// The App struct owns the full lifecycle: New creates and connects the
// subsystems, Run executes the session until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithVoiceProfile,
// WithMetrics). When an option is not provided, New creates the real thing
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tbjorklund/parlo/internal/config"
	"github.com/tbjorklund/parlo/internal/health"
	"github.com/tbjorklund/parlo/internal/observe"
	"github.com/tbjorklund/parlo/internal/segment"
	"github.com/tbjorklund/parlo/internal/turn"
	"github.com/tbjorklund/parlo/pkg/audio"
	"github.com/tbjorklund/parlo/pkg/provider/llm"
	"github.com/tbjorklund/parlo/pkg/provider/stt"
	"github.com/tbjorklund/parlo/pkg/provider/tts"
	"github.com/tbjorklund/parlo/pkg/provider/vad"
	"github.com/tbjorklund/parlo/pkg/provider/vad/energy"
)

// shutdownTimeout bounds the teardown of the operational HTTP server.
const shutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry; every slot is required.
type Providers struct {
	VAD   vad.Engine
	STT   stt.Provider
	LLM   llm.Provider
	TTS   tts.Provider
	Audio audio.Platform
}

// App owns all subsystem lifetimes and drives the Parlo voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	voice   tts.VoiceProfile
	metrics *observe.Metrics
	seg     *segment.Segmenter
	queue   *audio.FrameQueue
	coord   *turn.Coordinator
	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVoiceProfile injects a voice profile instead of loading one from the
// paths in the config.
func WithVoiceProfile(v tts.VoiceProfile) Option {
	return func(a *App) { a.voice = v }
}

// WithMetrics injects a metrics set instead of using the global meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring the subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all fallible initialisation synchronously — voice profile
// loading in particular fails here rather than mid-conversation as garbled
// synthesis.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.VAD == nil || providers.STT == nil ||
		providers.LLM == nil || providers.TTS == nil || providers.Audio == nil {
		return nil, errors.New("app: all provider slots are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Voice profile ─────────────────────────────────────────────────
	if a.voice.RefAudio == nil {
		v, err := tts.LoadVoiceProfile(cfg.Voice.RefAudio, cfg.Voice.RefText)
		if err != nil {
			return nil, fmt.Errorf("app: load voice profile: %w", err)
		}
		a.voice = v
		slog.Info("voice profile loaded",
			"name", v.Name, "sample_rate", v.SampleRate, "ref_text_len", len(v.RefText))
	}

	// ── 2. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 3. Segmenter ─────────────────────────────────────────────────────
	if err := a.initSegmenter(); err != nil {
		return nil, fmt.Errorf("app: init segmenter: %w", err)
	}

	// ── 4. Frame queue ───────────────────────────────────────────────────
	policy := audio.DropOldest
	if cfg.Audio.QueuePolicy == "block" {
		policy = audio.BlockWithTimeout
	}
	a.queue = audio.NewFrameQueue(cfg.Audio.QueueDepth, policy, cfg.Audio.QueueTimeout())
	a.closers = append(a.closers, func() error {
		a.queue.Close()
		return nil
	})

	// ── 5. Provider teardown ─────────────────────────────────────────────
	// Providers that hold resources (the native whisper model in particular)
	// implement io.Closer; release them on shutdown.
	for _, p := range []any{providers.VAD, providers.STT, providers.LLM, providers.TTS} {
		if closer, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, closer.Close)
		}
	}

	// ── 6. Operational HTTP server ───────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		a.initHTTP()
	}

	return a, nil
}

// initSegmenter opens the VAD sessions and builds the segmenter. A warm
// energy-based session rides along as the degraded-mode fallback; it is cheap
// enough that it does not matter when the primary already is the energy
// detector.
func (a *App) initSegmenter() error {
	vadCfg := vad.Config{
		SampleRate:       a.cfg.Audio.SampleRate,
		FrameSizeMs:      a.cfg.Audio.FrameMs,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.35,
	}

	primary, err := a.providers.VAD.NewSession(vadCfg)
	if err != nil {
		return fmt.Errorf("open vad session: %w", err)
	}
	a.closers = append(a.closers, primary.Close)

	fallback, err := energy.New().NewSession(vadCfg)
	if err != nil {
		return fmt.Errorf("open fallback vad session: %w", err)
	}
	a.closers = append(a.closers, fallback.Close)

	seg, err := segment.New(segment.Config{
		MinSpeech:     a.cfg.Session.MinSpeech(),
		MinSilence:    a.cfg.Session.MinSilence(),
		FrameDuration: a.cfg.Audio.FrameDuration(),
	}, primary, fallback)
	if err != nil {
		return fmt.Errorf("build segmenter: %w", err)
	}
	a.seg = seg
	return nil
}

// initHTTP assembles the operational endpoint: health probes and the
// Prometheus scrape target.
func (a *App) initHTTP() {
	var checkers []health.Checker
	if url := a.cfg.Providers.STT.BaseURL; url != "" {
		checkers = append(checkers, health.Endpoint("stt", url, nil))
	}
	if url := a.cfg.Providers.LLM.BaseURL; url != "" {
		checkers = append(checkers, health.Endpoint("llm", url, nil))
	}
	if url := a.cfg.Providers.TTS.BaseURL; url != "" {
		checkers = append(checkers, health.Endpoint("tts", url, nil))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run opens the audio transport and drives the session until ctx is cancelled
// or the pipeline fails fatally. It blocks for the duration of the session.
func (a *App) Run(ctx context.Context) error {
	source, sink, err := a.providers.Audio.Open(ctx)
	if err != nil {
		return fmt.Errorf("app: open audio transport: %w", err)
	}
	a.closers = append(a.closers, source.Close, sink.Close)

	coord, err := turn.New(turn.Config{
		Policy:           turn.BargeInPolicy(a.cfg.Session.BargeIn),
		GracePeriod:      a.cfg.Session.GracePeriod(),
		MaxHistory:       a.cfg.Session.MaxHistory,
		MaxContextTokens: a.cfg.Session.MaxContextTokens,
		SystemPrompt:     a.cfg.Session.SystemPrompt,
		FallbackReply:    a.cfg.Session.FallbackReply,
		Language:         a.cfg.Session.Language,
		Temperature:      a.cfg.Session.Temperature,
		MaxTokens:        a.cfg.Session.MaxTokens,
	}, turn.Deps{
		STT:       a.providers.STT,
		LLM:       a.providers.LLM,
		TTS:       a.providers.TTS,
		Voice:     a.voice,
		Sink:      sink,
		Segmenter: a.seg,
		Metrics:   a.metrics,
	})
	if err != nil {
		return fmt.Errorf("app: build coordinator: %w", err)
	}
	a.coord = coord

	g, gctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		g.Go(func() error { return a.serveHTTP(gctx) })
	}

	g.Go(func() error {
		a.pumpFrames(gctx, source)
		return nil
	})

	g.Go(func() error {
		err := coord.Run(gctx, a.queue.Frames())
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: coordinator: %w", err)
		}
		return err
	})

	if greeting := a.cfg.Session.Greeting; greeting != "" {
		if err := coord.SayText(gctx, greeting); err != nil {
			slog.Warn("greeting failed", "err", err)
		}
	}

	slog.Info("session running",
		"barge_in", a.cfg.Session.BargeIn,
		"sample_rate", a.cfg.Audio.SampleRate,
	)

	return g.Wait()
}

// pumpFrames moves frames from the transport into the bounded queue so a slow
// pipeline stage can never stall audio ingestion. Returns when the source
// stream ends or ctx is done; either way the queue is closed so the
// coordinator's frame channel drains and closes too.
func (a *App) pumpFrames(ctx context.Context, source audio.Source) {
	defer a.queue.Close()

	var lastDropped uint64
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source.Frames():
			if !ok {
				slog.Info("audio source closed")
				return
			}
			if err := a.queue.Push(frame); err != nil {
				return
			}
			if d := a.queue.Dropped(); d > lastDropped {
				a.metrics.DroppedFrames.Add(ctx, int64(d-lastDropped))
				lastDropped = d
			}
		}
	}
}

// serveHTTP runs the operational endpoint until ctx is done.
func (a *App) serveHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpSrv.ListenAndServe()
	}()
	slog.Info("operational endpoint listening", "addr", a.httpSrv.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears the session down. It respects the context deadline: if ctx
// expires before all closers finish, the rest are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.coord != nil {
			a.coord.Wait()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
