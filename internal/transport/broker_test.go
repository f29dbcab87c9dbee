package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticResolver map[string]string

func (r staticResolver) Resolve(ref string) (string, error) {
	return r[ref], nil
}

func captureRequest(t *testing.T, broker *Broker, scheme AuthScheme, ref string) *http.Request {
	t.Helper()
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		clone := req.Clone(req.Context())
		captured = clone
	}))
	defer server.Close()

	client := broker.Client(scheme, ref)
	req, err := http.NewRequest(http.MethodGet, server.URL+"/v1/messages", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	// Placeholder auth the SDK would attach.
	req.Header.Set("Authorization", "Bearer managed-by-broker")
	req.Header.Set("X-Api-Key", "managed-by-broker")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if captured == nil {
		t.Fatal("server saw no request")
	}
	return captured
}

func TestBrokerInjectsAPIKeyHeader(t *testing.T) {
	broker := NewBroker(staticResolver{"ai-key:a": "sk-real"})
	req := captureRequest(t, broker, SchemeAPIKeyHeader, "ai-key:a")

	if got := req.Header.Get("X-Api-Key"); got != "sk-real" {
		t.Errorf("X-Api-Key = %q, want sk-real", got)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("placeholder Authorization header leaked: %q", got)
	}
}

func TestBrokerInjectsBearer(t *testing.T) {
	broker := NewBroker(staticResolver{"ai-key:o": "sk-open"})
	req := captureRequest(t, broker, SchemeBearer, "ai-key:o")

	if got := req.Header.Get("Authorization"); got != "Bearer sk-open" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("X-Api-Key"); got != "" {
		t.Errorf("placeholder X-Api-Key header leaked: %q", got)
	}
}

func TestBrokerInjectsQueryKey(t *testing.T) {
	broker := NewBroker(staticResolver{"ai-key:g": "gk-123"})
	req := captureRequest(t, broker, SchemeQueryKey, "ai-key:g")

	if got := req.URL.Query().Get("key"); got != "gk-123" {
		t.Errorf("key query param = %q", got)
	}
}

func TestBrokerUnknownRefStripsPlaceholders(t *testing.T) {
	broker := NewBroker(staticResolver{})
	req := captureRequest(t, broker, SchemeBearer, "ai-key:missing")

	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("expected no Authorization header, got %q", got)
	}
	if got := req.Header.Get("X-Api-Key"); got != "" {
		t.Errorf("expected no X-Api-Key header, got %q", got)
	}
}

func TestBrokerNoneSchemeSendsNothing(t *testing.T) {
	broker := NewBroker(staticResolver{"ai-key:l": "local-secret"})
	req := captureRequest(t, broker, SchemeNone, "ai-key:l")

	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("expected no Authorization header, got %q", got)
	}
	if got := req.URL.Query().Get("key"); got != "" {
		t.Errorf("expected no key query param, got %q", got)
	}
}

func TestSchemeForKind(t *testing.T) {
	cases := map[string]AuthScheme{
		"anthropic":     SchemeAPIKeyHeader,
		"gemini":        SchemeQueryKey,
		"ollama":        SchemeNone,
		"openai":        SchemeBearer,
		"openai-compat": SchemeBearer,
	}
	for kind, want := range cases {
		if got := SchemeForKind(kind); got != want {
			t.Errorf("SchemeForKind(%q) = %q, want %q", kind, got, want)
		}
	}
}

func TestAbortRegistryCancelsContext(t *testing.T) {
	registry := NewAbortRegistry()
	ctx, release := registry.Register(context.Background(), "req-1")
	defer release()

	if !registry.Abort("req-1") {
		t.Fatal("Abort returned false for registered id")
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("context not cancelled after Abort")
	}
	if registry.Abort("req-1") {
		t.Error("second Abort should return false")
	}
}

func TestAbortRegistryReleaseRemovesEntry(t *testing.T) {
	registry := NewAbortRegistry()
	_, release := registry.Register(context.Background(), "req-1")
	release()

	if registry.Len() != 0 {
		t.Errorf("expected empty registry after release, got %d entries", registry.Len())
	}
	if registry.Abort("req-1") {
		t.Error("Abort after release should return false")
	}
}

func TestAbortRegistrySupersedesSameID(t *testing.T) {
	registry := NewAbortRegistry()
	first, _ := registry.Register(context.Background(), "req-1")
	_, release := registry.Register(context.Background(), "req-1")
	defer release()

	select {
	case <-first.Done():
	default:
		t.Error("first registration should be cancelled when superseded")
	}
	if registry.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", registry.Len())
	}
}
