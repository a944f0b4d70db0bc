package llm

import (
	"testing"

	"github.com/ppiankov/claimguard/internal/model"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantName string
		wantNil  bool
		wantErr  bool
	}{
		{name: "disabled", config: Config{}, wantNil: true},
		{name: "openai", config: Config{Provider: "openai", APIKey: "k"}, wantName: "openai"},
		{name: "groq", config: Config{Provider: "GROQ", APIKey: "k"}, wantName: "groq"},
		{name: "anthropic alias", config: Config{Provider: "claude", APIKey: "k"}, wantName: "anthropic"},
		{name: "ollama", config: Config{Provider: "ollama"}, wantName: "ollama"},
		{name: "missing key", config: Config{Provider: "openai"}, wantErr: true},
		{name: "unknown", config: Config{Provider: "bard"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if p != nil {
					t.Errorf("expected nil provider, got %s", p.Name())
				}
				return
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestNewProvider_GroqDefaults(t *testing.T) {
	p, err := NewProvider(Config{Provider: "groq", APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	o := p.(*OpenAIProvider)
	if o.config.BaseURL != GroqBaseURL {
		t.Errorf("BaseURL = %q", o.config.BaseURL)
	}
	if o.config.Model == "" {
		t.Error("expected a default Groq model")
	}
}

func TestConfigFromModel_KeyFromEnv(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "from-env")
	t.Setenv("OLLAMA_BASE_URL", "http://gpu:11434")

	cfg := ConfigFromModel(model.LLMConfig{Provider: "groq", Timeout: 10})
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Timeout != 10 {
		t.Errorf("Timeout = %d", cfg.Timeout)
	}

	cfg = ConfigFromModel(model.LLMConfig{Provider: "groq", APIKey: "explicit"})
	if cfg.APIKey != "explicit" {
		t.Errorf("explicit key should win, got %q", cfg.APIKey)
	}

	cfg = ConfigFromModel(model.LLMConfig{Provider: "ollama"})
	if cfg.BaseURL != "http://gpu:11434" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
}
