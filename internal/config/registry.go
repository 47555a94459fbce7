package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tbjorklund/parlo/pkg/provider/llm"
	"github.com/tbjorklund/parlo/pkg/provider/stt"
	"github.com/tbjorklund/parlo/pkg/provider/tts"
	"github.com/tbjorklund/parlo/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory signatures per pipeline stage. A factory builds a provider from its
// configuration entry; construction errors surface at startup.
type (
	VADFactory func(entry ProviderEntry) (vad.Engine, error)
	STTFactory func(entry ProviderEntry) (stt.Provider, error)
	LLMFactory func(entry ProviderEntry) (llm.Provider, error)
	TTSFactory func(entry ProviderEntry) (tts.Provider, error)
)

// Registry maps provider names to factories, one namespace per pipeline
// stage. The process registers every built-in factory at startup and the
// assembly code creates providers by the names the config file uses.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	vad map[string]VADFactory
	stt map[string]STTFactory
	llm map[string]LLMFactory
	tts map[string]TTSFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		vad: make(map[string]VADFactory),
		stt: make(map[string]STTFactory),
		llm: make(map[string]LLMFactory),
		tts: make(map[string]TTSFactory),
	}
}

// RegisterVAD registers a detection engine factory under name.
func (r *Registry) RegisterVAD(name string, f VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = f
}

// RegisterSTT registers a recognition provider factory under name.
func (r *Registry) RegisterSTT(name string, f STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = f
}

// RegisterLLM registers a generation provider factory under name.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterTTS registers a synthesis provider factory under name.
func (r *Registry) RegisterTTS(name string, f TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// CreateVAD builds the detection engine named by entry.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	f, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateSTT builds the recognition provider named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateLLM builds the generation provider named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}

// CreateTTS builds the synthesis provider named by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return f(entry)
}
