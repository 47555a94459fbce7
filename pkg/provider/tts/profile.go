package tts

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// VoiceProfile describes the cloned voice used for synthesis. Voice-cloning
// models condition on a short reference recording plus its transcript; both
// are loaded from disk at startup.
type VoiceProfile struct {
	// Name identifies the profile, derived from the reference audio filename.
	Name string

	// RefAudio is the reference recording as a complete WAV file.
	RefAudio []byte

	// RefText is the transcript of the reference recording.
	RefText string

	// SampleRate and Channels describe the reference recording's format.
	SampleRate int
	Channels   int
}

// LoadVoiceProfile reads and validates a voice profile from a reference WAV
// file and its transcript file. It fails fast on any problem — a broken voice
// profile would otherwise surface mid-conversation as garbled or failed
// synthesis, which is much harder to diagnose.
func LoadVoiceProfile(audioPath, textPath string) (VoiceProfile, error) {
	if audioPath == "" || textPath == "" {
		return VoiceProfile{}, errors.New("tts: voice profile requires both an audio path and a text path")
	}

	wav, err := os.ReadFile(audioPath)
	if err != nil {
		return VoiceProfile{}, fmt.Errorf("tts: read reference audio %s: %w", audioPath, err)
	}
	info, err := ParseWAV(wav)
	if err != nil {
		return VoiceProfile{}, fmt.Errorf("tts: reference audio %s: %w", audioPath, err)
	}
	if info.BitsPerSample != 16 {
		return VoiceProfile{}, fmt.Errorf("tts: reference audio %s: %d-bit samples, want 16-bit PCM", audioPath, info.BitsPerSample)
	}
	if len(wav) <= info.DataOffset {
		return VoiceProfile{}, fmt.Errorf("tts: reference audio %s contains no sample data", audioPath)
	}

	textBytes, err := os.ReadFile(textPath)
	if err != nil {
		return VoiceProfile{}, fmt.Errorf("tts: read reference text %s: %w", textPath, err)
	}
	refText := strings.TrimSpace(string(textBytes))
	if refText == "" {
		return VoiceProfile{}, fmt.Errorf("tts: reference text %s is empty", textPath)
	}

	return VoiceProfile{
		Name:       profileName(audioPath),
		RefAudio:   wav,
		RefText:    refText,
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
	}, nil
}

// profileName derives a profile name from the audio filename, stripping
// directory and extension.
func profileName(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return base
}
