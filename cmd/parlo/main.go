// Command parlo is the entry point for the Parlo voice agent.
//
// Usage:
//
//	parlo [flags] [mode]
//
// Modes:
//
//	start        run against the configured audio room (default)
//	dev          like start, with debug logging forced on
//	console      talk to the agent over stdin/stdout as raw PCM
//	voice-setup  validate the configured voice profile and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/tbjorklund/parlo/internal/app"
	"github.com/tbjorklund/parlo/internal/config"
	"github.com/tbjorklund/parlo/internal/observe"
	"github.com/tbjorklund/parlo/internal/resilience"
	"github.com/tbjorklund/parlo/pkg/audio"
	"github.com/tbjorklund/parlo/pkg/audio/local"
	"github.com/tbjorklund/parlo/pkg/audio/room"
	"github.com/tbjorklund/parlo/pkg/provider/llm"
	"github.com/tbjorklund/parlo/pkg/provider/llm/anyllm"
	"github.com/tbjorklund/parlo/pkg/provider/llm/openai"
	"github.com/tbjorklund/parlo/pkg/provider/stt"
	"github.com/tbjorklund/parlo/pkg/provider/stt/whisper"
	"github.com/tbjorklund/parlo/pkg/provider/tts"
	"github.com/tbjorklund/parlo/pkg/provider/tts/neutts"
	"github.com/tbjorklund/parlo/pkg/provider/vad"
	"github.com/tbjorklund/parlo/pkg/provider/vad/energy"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	mode := flag.Arg(0)
	if mode == "" {
		mode = "start"
	}
	switch mode {
	case "start", "dev", "console", "voice-setup":
	default:
		fmt.Fprintf(os.Stderr, "parlo: unknown mode %q (start, dev, console, voice-setup)\n", mode)
		return 2
	}
	console := mode == "console"

	// Secrets like the room token usually live in a .env next to the config.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parlo: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parlo: %v\n", err)
		}
		return 1
	}
	if mode == "dev" {
		cfg.Server.LogLevel = config.LogLevelDebug
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if mode == "voice-setup" {
		return runVoiceSetup(cfg)
	}

	slog.Info("parlo starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "parlo",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownMetrics(flushCtx)
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg, console)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, console)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("session ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runVoiceSetup validates the configured voice profile and reports what the
// synthesizer will see. Run it after recording a new reference clip.
func runVoiceSetup(cfg *config.Config) int {
	v, err := tts.LoadVoiceProfile(cfg.Voice.RefAudio, cfg.Voice.RefText)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parlo: voice profile check failed: %v\n", err)
		return 1
	}
	fmt.Printf("voice profile %q OK\n", v.Name)
	fmt.Printf("  reference audio : %s (%d Hz, %d channel(s), %d bytes)\n",
		cfg.Voice.RefAudio, v.SampleRate, v.Channels, len(v.RefAudio))
	fmt.Printf("  reference text  : %q\n", v.RefText)
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The local inference servers share the anyllm pattern: optional BaseURL,
	// no API key needed.
	for _, providerName := range []string{"ollama", "llamacpp", "llamafile"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// openai covers any OpenAI-compatible server (LM Studio, vLLM,
	// llama-server in OpenAI mode).
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if entry.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(entry.APIKey))
		}
		return openai.New(entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptionString("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("neutts", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []neutts.Option
		if n := entry.OptionInt("lookahead", 0); n > 0 {
			opts = append(opts, neutts.WithLookahead(n))
		}
		if rate := entry.OptionInt("output_sample_rate", 0); rate > 0 {
			opts = append(opts, neutts.WithOutputSampleRate(rate))
		}
		if d := entry.OptionDuration("timeout_ms", 0); d > 0 {
			opts = append(opts, neutts.WithTimeout(d))
		}
		return neutts.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		speech := entry.OptionFloat("speech_rms", 0)
		silence := entry.OptionFloat("silence_rms", 0)
		if speech > 0 && silence > 0 {
			opts = append(opts, energy.WithRMSThresholds(speech, silence))
		}
		return energy.New(opts...), nil
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct. The audio transport is
// selected by config: a room URL means the WebSocket audio room, otherwise
// the local console.
func buildProviders(cfg *config.Config, reg *config.Registry, console bool) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.VAD, err = reg.CreateVAD(cfg.Providers.VAD); err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	if ps.STT, err = reg.CreateSTT(cfg.Providers.STT); err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	if ps.TTS, err = reg.CreateTTS(cfg.Providers.TTS); err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = primary

	// A configured fallback model wraps the primary in a circuit-breaking
	// failover group.
	if fb := cfg.Providers.LLMFallback; fb.Name != "" {
		secondary, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
		}
		group := resilience.NewLLMFallback(primary, cfg.Providers.LLM.String(), resilience.FallbackConfig{})
		group.AddFallback(fb.String(), secondary)
		ps.LLM = group
		slog.Info("llm failover enabled", "primary", cfg.Providers.LLM.String(), "fallback", fb.String())
	}

	ps.Audio, err = buildTransport(cfg, console)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// buildTransport selects and constructs the audio platform.
func buildTransport(cfg *config.Config, console bool) (audio.Platform, error) {
	if console || cfg.Audio.RoomURL == "" {
		// Realtime pacing keeps file-fed input from flooding the pipeline
		// faster than wall clock, which would skew the barge-in grace period.
		p, err := local.New(os.Stdin, os.Stdout,
			local.WithSampleRate(cfg.Audio.SampleRate),
			local.WithFrameDuration(cfg.Audio.FrameDuration()),
			local.WithRealtimePacing(),
		)
		if err != nil {
			return nil, fmt.Errorf("create console transport: %w", err)
		}
		return p, nil
	}

	var opts []room.Option
	if cfg.Audio.Token != "" {
		opts = append(opts, room.WithToken(cfg.Audio.Token))
	}
	opts = append(opts, room.WithPipelineRate(cfg.Audio.SampleRate))
	p, err := room.New(cfg.Audio.RoomURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create room transport: %w", err)
	}
	return p, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

// printStartupSummary writes the banner to stderr; in console mode stdout
// carries the synthesized PCM stream.
func printStartupSummary(cfg *config.Config, console bool) {
	transport := "room " + cfg.Audio.RoomURL
	if console || cfg.Audio.RoomURL == "" {
		transport = "console"
	}

	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║          Parlo — startup summary      ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printLine("VAD", cfg.Providers.VAD.String())
	printLine("STT", cfg.Providers.STT.String())
	printLine("LLM", cfg.Providers.LLM.String())
	if cfg.Providers.LLMFallback.Name != "" {
		printLine("LLM fallback", cfg.Providers.LLMFallback.String())
	}
	printLine("TTS", cfg.Providers.TTS.String())
	printLine("Voice", cfg.Voice.RefAudio)
	printLine("Transport", transport)
	printLine("Barge-in", cfg.Session.BargeIn)
	if cfg.Server.ListenAddr != "" {
		printLine("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

func printLine(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 22 {
		value = value[:21] + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-12s : %-22s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
