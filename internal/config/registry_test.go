package config

import (
	"errors"
	"testing"

	"github.com/tbjorklund/parlo/pkg/provider/llm"
	llmmock "github.com/tbjorklund/parlo/pkg/provider/llm/mock"
)

func TestRegistryCreateUsesRegisteredFactory(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var gotEntry ProviderEntry
	r.RegisterLLM("ollama", func(entry ProviderEntry) (llm.Provider, error) {
		gotEntry = entry
		return &llmmock.Provider{}, nil
	})

	p, err := r.CreateLLM(ProviderEntry{Name: "ollama", Model: "llama3.2"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM returned nil provider")
	}
	if gotEntry.Model != "llama3.2" {
		t.Errorf("factory received entry %+v", gotEntry)
	}
}

func TestRegistryCreateUnregistered(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.CreateSTT(ProviderEntry{Name: "whisper"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryNamespacesAreIndependent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.RegisterLLM("shared", func(ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	if _, err := r.CreateTTS(ProviderEntry{Name: "shared"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("tts namespace resolved an llm registration: %v", err)
	}
}
