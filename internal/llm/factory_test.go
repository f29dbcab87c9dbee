package llm_test

import (
	"net/http"
	"testing"

	"github.com/quillmd/quill/internal/llm"
)

func TestNewProviderKinds(t *testing.T) {
	client := &http.Client{}
	cases := []struct {
		name     string
		settings llm.ProviderSettings
		wantErr  bool
	}{
		{"anthropic", llm.ProviderSettings{Name: "anthropic", Kind: llm.KindAnthropic, Model: "claude-sonnet-4-5"}, false},
		{"openai", llm.ProviderSettings{Name: "openai", Kind: llm.KindOpenAI, Model: "gpt-5.2"}, false},
		{"gemini", llm.ProviderSettings{Name: "gemini", Kind: llm.KindGemini, Model: "gemini-3-flash-preview"}, false},
		{"compat with url", llm.ProviderSettings{Name: "ollama", Kind: llm.KindOpenAICompat, Model: "llama3", BaseURL: "http://localhost:11434/v1"}, false},
		{"compat without url", llm.ProviderSettings{Name: "ollama", Kind: llm.KindOpenAICompat, Model: "llama3"}, true},
		{"unknown kind", llm.ProviderSettings{Name: "x", Kind: "fax-modem", Model: "m"}, true},
	}

	for _, tc := range cases {
		provider, err := llm.NewProvider(tc.settings, client)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tc.name, err, tc.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if provider.Name() != tc.settings.Name {
			t.Errorf("%s: Name = %q", tc.name, provider.Name())
		}
		if provider.Kind() != tc.settings.Kind {
			t.Errorf("%s: Kind = %q", tc.name, provider.Kind())
		}
	}
}

func TestParseProviderModel(t *testing.T) {
	cases := []struct {
		in       string
		provider string
		model    string
		wantErr  bool
	}{
		{"anthropic:claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5", false},
		{"openai", "openai", "", false},
		{"gemini: gemini-3-flash-preview", "gemini", "gemini-3-flash-preview", false},
		{":model-only", "", "", true},
		{"", "", "", true},
	}

	for _, tc := range cases {
		provider, model, err := llm.ParseProviderModel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if provider != tc.provider || model != tc.model {
			t.Errorf("%q: got %q/%q, want %q/%q", tc.in, provider, model, tc.provider, tc.model)
		}
	}
}
