package transport

import (
	"net/http"
	"time"
)

// AuthScheme selects how a secret is attached to outgoing requests.
type AuthScheme string

const (
	// SchemeAPIKeyHeader sends the secret in an x-api-key header (Anthropic).
	SchemeAPIKeyHeader AuthScheme = "api-key-header"
	// SchemeQueryKey appends the secret as a key query parameter (Gemini).
	SchemeQueryKey AuthScheme = "query-key"
	// SchemeBearer sends an Authorization: Bearer header.
	SchemeBearer AuthScheme = "bearer"
	// SchemeNone sends no credentials (local servers such as Ollama).
	SchemeNone AuthScheme = "none"
)

// SchemeForKind maps a provider kind to its auth scheme. Unknown kinds get
// bearer auth, which is what most OpenAI-compatible servers expect.
func SchemeForKind(kind string) AuthScheme {
	switch kind {
	case "anthropic":
		return SchemeAPIKeyHeader
	case "gemini":
		return SchemeQueryKey
	case "ollama":
		return SchemeNone
	default:
		return SchemeBearer
	}
}

// Resolver turns an opaque credential reference into a secret. An unknown
// ref resolves to an empty string.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// Broker builds HTTP clients that inject credentials per request. SDK
// clients are constructed with these so the rest of the process only ever
// handles credential references.
type Broker struct {
	resolver Resolver
	base     http.RoundTripper
}

// NewBroker creates a broker over the given resolver.
func NewBroker(resolver Resolver) *Broker {
	return &Broker{resolver: resolver, base: newBaseTransport()}
}

// Client returns an http.Client whose transport resolves ref and attaches
// the secret according to scheme. No total request timeout is set: streamed
// responses stay open for the life of the stream, and the header timeout on
// the base transport bounds connection establishment.
func (b *Broker) Client(scheme AuthScheme, ref string) *http.Client {
	return &http.Client{
		Transport: &authTransport{
			base:     b.base,
			resolver: b.resolver,
			scheme:   scheme,
			ref:      ref,
		},
	}
}

func newBaseTransport() *http.Transport {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{ResponseHeaderTimeout: 30 * time.Second}
	}
	cloned := transport.Clone()
	cloned.ResponseHeaderTimeout = 30 * time.Second
	return cloned
}

// authTransport swaps whatever placeholder auth the SDK attached for the
// real secret, resolved fresh on every request so rotations take effect
// without restarting.
type authTransport struct {
	base     http.RoundTripper
	resolver Resolver
	scheme   AuthScheme
	ref      string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	secret, err := t.resolver.Resolve(t.ref)
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	out.Header.Del("Authorization")
	out.Header.Del("X-Api-Key")
	out.Header.Del("X-Goog-Api-Key")

	if secret != "" {
		switch t.scheme {
		case SchemeAPIKeyHeader:
			out.Header.Set("X-Api-Key", secret)
		case SchemeQueryKey:
			query := out.URL.Query()
			query.Set("key", secret)
			out.URL.RawQuery = query.Encode()
		case SchemeBearer:
			out.Header.Set("Authorization", "Bearer "+secret)
		case SchemeNone:
		}
	}
	return t.base.RoundTrip(out)
}
