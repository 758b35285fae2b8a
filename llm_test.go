package concursoprep

import (
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(""); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("empty registry Get() error = %v", err)
	}

	r.Register(&fakeChat{name: ProviderGroq})
	r.Register(&fakeChat{name: ProviderDeepSeek})

	m, err := r.Get("")
	if err != nil || m.Name() != ProviderGroq {
		t.Errorf("default model = %v, %v; want the first registered", m, err)
	}
	if m, err := r.Get(" DeepSeek "); err != nil || m.Name() != ProviderDeepSeek {
		t.Errorf("Get(DeepSeek) = %v, %v", m, err)
	}
	if _, err := r.Get(ProviderGemini); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Get(gemini) error = %v", err)
	}
	if names := r.Names(); len(names) != 2 || names[0] != ProviderDeepSeek {
		t.Errorf("Names() = %v", names)
	}
}

func TestRegistryFromConfig(t *testing.T) {
	cfg := &Config{GroqAPIKey: "gsk-test", GroqModel: "llama", DeepSeekModel: "deepseek-chat"}
	r := NewRegistryFromConfig(cfg)
	if names := r.Names(); len(names) != 1 || names[0] != ProviderGroq {
		t.Errorf("Names() = %v, want only groq", names)
	}
	if _, err := r.Get(ProviderDeepSeek); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("provider without key available: %v", err)
	}
}
