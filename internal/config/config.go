// Package config defines the YAML configuration schema for a Parlo agent
// process and its loader. One config file describes the whole session: the
// transport, the provider for each pipeline stage, the voice profile, and the
// turn-taking behavior.
package config

import (
	"fmt"
	"time"
)

// LogLevel is the minimum severity emitted by the process logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether the level is one of the accepted values.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// Config is the root of the configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
}

// ServerConfig configures the operational HTTP endpoint (health probes and
// metrics) and process-wide logging.
type ServerConfig struct {
	// ListenAddr is the bind address of the operational HTTP server.
	// Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is the minimum log severity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig configures the duplex audio transport.
type AudioConfig struct {
	// RoomURL is the WebSocket URL of the audio room. Empty selects the
	// local console transport instead.
	RoomURL string `yaml:"room_url"`

	// Token authenticates against the audio room, if it requires one.
	Token string `yaml:"token"`

	// SampleRate is the pipeline sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the frame duration in milliseconds. Default: 20.
	FrameMs int `yaml:"frame_ms"`

	// QueueDepth bounds the ingestion frame queue. Default: 256.
	QueueDepth int `yaml:"queue_depth"`

	// QueuePolicy selects what happens when the frame queue is full:
	// "drop-oldest" (default) or "block" with QueueTimeoutMs.
	QueuePolicy string `yaml:"queue_policy"`

	// QueueTimeoutMs is how long a full queue blocks the producer under the
	// "block" policy before dropping the new frame. Default: 20.
	QueueTimeoutMs int `yaml:"queue_timeout_ms"`
}

// SessionConfig holds the turn-taking and generation tuning.
type SessionConfig struct {
	// BargeIn selects the interruption policy: "always", "never", or
	// "grace-period". Default: grace-period.
	BargeIn string `yaml:"barge_in"`

	// GracePeriodMs is how long the agent must have been speaking before a
	// barge-in is honored under the grace-period policy. Default: 300.
	GracePeriodMs int `yaml:"grace_period_ms"`

	// MinSpeechMs is how long speech must be sustained before a segment
	// opens. Default: 200.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MinSilenceMs is the end-of-turn pause. Default: 500.
	MinSilenceMs int `yaml:"min_silence_ms"`

	// MaxHistory bounds the conversation log in turns. Default: 32.
	MaxHistory int `yaml:"max_history"`

	// MaxContextTokens, when positive, trims the oldest history from
	// generation requests until the estimate fits.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// SystemPrompt is injected before the history on every generation
	// request.
	SystemPrompt string `yaml:"system_prompt"`

	// Greeting, when set, is spoken once when the session opens.
	Greeting string `yaml:"greeting"`

	// FallbackReply is spoken when generation fails before producing any
	// text. Empty uses the built-in apology.
	FallbackReply string `yaml:"fallback_reply"`

	// Language is the recognition language hint (ISO 639-1). Empty lets the
	// recognizer decide.
	Language string `yaml:"language"`

	// Temperature and MaxTokens pass through to generation requests.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ProvidersConfig selects the backend for each pipeline stage.
type ProvidersConfig struct {
	VAD ProviderEntry `yaml:"vad"`
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	// LLMFallback, when named, is a secondary generation backend that takes
	// over when the primary's circuit breaker opens.
	LLMFallback ProviderEntry `yaml:"llm_fallback"`
}

// ProviderEntry configures one provider instance.
type ProviderEntry struct {
	// Name selects the implementation; see ValidProviderNames for the
	// accepted values per stage.
	Name string `yaml:"name"`

	// APIKey authenticates against the backend. Local servers usually
	// ignore it.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default server address.
	BaseURL string `yaml:"base_url"`

	// Model names the model the backend should load or address.
	Model string `yaml:"model"`

	// Options carries implementation-specific settings.
	Options map[string]any `yaml:"options"`
}

// VoiceConfig points at the cloned-voice reference material.
type VoiceConfig struct {
	// RefAudio is the path to the reference WAV recording.
	RefAudio string `yaml:"ref_audio"`

	// RefText is the path to the transcript of the reference recording.
	RefText string `yaml:"ref_text"`
}

// ValidProviderNames lists the accepted provider names per stage. Validate
// rejects anything else so a typo fails at startup rather than at first use.
var ValidProviderNames = map[string][]string{
	"vad": {"energy"},
	"stt": {"whisper", "whisper-native"},
	"llm": {"ollama", "llamacpp", "llamafile", "openai"},
	"tts": {"neutts"},
}

// ValidBargeInPolicies lists the accepted session.barge_in values.
var ValidBargeInPolicies = []string{"always", "never", "grace-period"}

// ValidQueuePolicies lists the accepted audio.queue_policy values.
var ValidQueuePolicies = []string{"drop-oldest", "block"}

// QueueTimeout returns the block-policy timeout as a duration.
func (a AudioConfig) QueueTimeout() time.Duration {
	return time.Duration(a.QueueTimeoutMs) * time.Millisecond
}

// GracePeriod returns the grace period as a duration.
func (s SessionConfig) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodMs) * time.Millisecond
}

// MinSpeech returns the segment-open debounce as a duration.
func (s SessionConfig) MinSpeech() time.Duration {
	return time.Duration(s.MinSpeechMs) * time.Millisecond
}

// MinSilence returns the end-of-turn pause as a duration.
func (s SessionConfig) MinSilence() time.Duration {
	return time.Duration(s.MinSilenceMs) * time.Millisecond
}

// FrameDuration returns the frame length as a duration.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

// OptionString reads a string-valued option, or def when absent.
func (e ProviderEntry) OptionString(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}

// OptionInt reads an integer-valued option, or def when absent. YAML decodes
// whole numbers as int, so no float coercion is attempted.
func (e ProviderEntry) OptionInt(key string, def int) int {
	if v, ok := e.Options[key].(int); ok {
		return v
	}
	return def
}

// OptionFloat reads a float-valued option, or def when absent. Accepts ints
// too, since YAML decodes "0" as int even in a float position.
func (e ProviderEntry) OptionFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// OptionDuration reads a duration-valued option given in milliseconds, or def
// when absent.
func (e ProviderEntry) OptionDuration(key string, def time.Duration) time.Duration {
	if v, ok := e.Options[key].(int); ok {
		return time.Duration(v) * time.Millisecond
	}
	return def
}

func (e ProviderEntry) String() string {
	if e.Model == "" {
		return e.Name
	}
	return fmt.Sprintf("%s/%s", e.Name, e.Model)
}
