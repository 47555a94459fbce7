package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults, and validates the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a configuration from r, applies defaults, and
// validates it. Unknown fields are rejected so typos surface immediately.
func LoadFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills the zero values the schema documents defaults for.
func (c *Config) applyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogLevelInfo
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameMs == 0 {
		c.Audio.FrameMs = 20
	}
	if c.Audio.QueueDepth == 0 {
		c.Audio.QueueDepth = 256
	}
	if c.Audio.QueuePolicy == "" {
		c.Audio.QueuePolicy = "drop-oldest"
	}
	if c.Audio.QueueTimeoutMs == 0 {
		c.Audio.QueueTimeoutMs = 20
	}
	if c.Session.BargeIn == "" {
		c.Session.BargeIn = "grace-period"
	}
	if c.Session.GracePeriodMs == 0 {
		c.Session.GracePeriodMs = 300
	}
	if c.Session.MinSpeechMs == 0 {
		c.Session.MinSpeechMs = 200
	}
	if c.Session.MinSilenceMs == 0 {
		c.Session.MinSilenceMs = 500
	}
	if c.Session.MaxHistory == 0 {
		c.Session.MaxHistory = 32
	}
}

// Validate checks the configuration for errors a session cannot start with.
// Suspicious-but-workable settings are logged as warnings instead.
func (c *Config) Validate() error {
	var errs []error

	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level: unknown level %q", c.Server.LogLevel))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate: must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms: must be positive, got %d", c.Audio.FrameMs))
	}
	if c.Audio.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_depth: must not be negative, got %d", c.Audio.QueueDepth))
	}
	if !slices.Contains(ValidQueuePolicies, c.Audio.QueuePolicy) {
		errs = append(errs, fmt.Errorf("audio.queue_policy: unknown policy %q (valid: %v)",
			c.Audio.QueuePolicy, ValidQueuePolicies))
	}

	if !slices.Contains(ValidBargeInPolicies, c.Session.BargeIn) {
		errs = append(errs, fmt.Errorf("session.barge_in: unknown policy %q (valid: %v)",
			c.Session.BargeIn, ValidBargeInPolicies))
	}
	if c.Session.GracePeriodMs < 0 {
		errs = append(errs, fmt.Errorf("session.grace_period_ms: must not be negative, got %d", c.Session.GracePeriodMs))
	}
	if c.Session.MinSpeechMs <= 0 || c.Session.MinSilenceMs <= 0 {
		errs = append(errs, fmt.Errorf("session: min_speech_ms and min_silence_ms must be positive"))
	}
	if c.Session.MinSilenceMs < c.Session.MinSpeechMs {
		slog.Warn("end-of-turn pause is shorter than the speech debounce; utterances may split at natural pauses",
			"min_silence_ms", c.Session.MinSilenceMs, "min_speech_ms", c.Session.MinSpeechMs)
	}

	errs = append(errs, validateProviderEntry("vad", c.Providers.VAD, true)...)
	errs = append(errs, validateProviderEntry("stt", c.Providers.STT, true)...)
	errs = append(errs, validateProviderEntry("llm", c.Providers.LLM, true)...)
	errs = append(errs, validateProviderEntry("tts", c.Providers.TTS, true)...)
	errs = append(errs, validateProviderEntry("llm", c.Providers.LLMFallback, false)...)

	if c.Providers.TTS.Name != "" {
		if c.Voice.RefAudio == "" || c.Voice.RefText == "" {
			errs = append(errs, errors.New("voice: ref_audio and ref_text are required when a tts provider is configured"))
		}
	}

	return errors.Join(errs...)
}

// validateProviderEntry checks one provider entry against the accepted names
// for its stage. An empty entry is an error only when the stage is required.
func validateProviderEntry(stage string, e ProviderEntry, required bool) []error {
	if e.Name == "" {
		if required {
			return []error{fmt.Errorf("providers.%s: name is required", stage)}
		}
		return nil
	}
	if !slices.Contains(ValidProviderNames[stage], e.Name) {
		return []error{fmt.Errorf("providers.%s: unknown provider %q (valid: %v)",
			stage, e.Name, ValidProviderNames[stage])}
	}
	return nil
}
